package embedding

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SceneLabels is the canonical label vocabulary used by the classifier-backed
// providers. The vector they produce has one slot per label, in this order,
// so vectors from different classifier calls are directly comparable.
var SceneLabels = []string{
	"animal",
	"architecture",
	"beach",
	"building",
	"car",
	"city",
	"document",
	"face",
	"flower",
	"food",
	"forest",
	"group photo",
	"indoor",
	"landscape",
	"mountain",
	"night",
	"outdoor",
	"people",
	"screenshot",
	"sky",
	"snow",
	"sport",
	"sunset",
	"text",
	"water",
}

// NormalizeLabel normalizes a label for comparison (lowercase, no
// diacritics, spaces for dashes and underscores). Classifier models sometimes
// echo labels back with different casing or accents.
func NormalizeLabel(label string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, label)
	result = strings.ToLower(result)
	result = strings.ReplaceAll(result, "-", " ")
	result = strings.ReplaceAll(result, "_", " ")
	return strings.TrimSpace(result)
}

// labelVector converts a label→score map into a vector over SceneLabels.
// Unknown labels are dropped; missing labels score 0. Scores are clamped to
// [0,1].
func labelVector(scores map[string]float64) []float32 {
	index := make(map[string]int, len(SceneLabels))
	for i, label := range SceneLabels {
		index[NormalizeLabel(label)] = i
	}

	vec := make([]float32, len(SceneLabels))
	for label, score := range scores {
		i, ok := index[NormalizeLabel(label)]
		if !ok {
			continue
		}
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		vec[i] = float32(score)
	}
	return vec
}
