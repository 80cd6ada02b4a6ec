// Package scorer computes composite similarity scores between image
// descriptors. The score is a weighted sum of sub-scores, each in [0,1];
// which sub-scores participate is configuration, not a separate algorithm.
package scorer

import (
	"errors"
	"fmt"
	"math"

	"github.com/kozaktomas/photo-matcher/internal/descriptor"
)

// ErrInvalidWeights indicates a weight configuration that does not sum to 1
// or contains negative entries. This is a caller configuration error and
// fails fast before any scoring runs.
var ErrInvalidWeights = errors.New("invalid weight configuration")

// weightSumTolerance absorbs floating point noise when validating that
// weights sum to 1.
const weightSumTolerance = 1e-6

// colorNormalization is the maximum euclidean distance between two average
// colors in the unit RGB cube.
var colorNormalization = math.Sqrt(3)

// Weights configures the contribution of each sub-score to the composite.
// All entries must be non-negative and sum to 1.
//
// Resolution is intentionally asymmetric: operand A is treated as the
// possibly-resized copy and B as the possible original. With Resolution 0
// the composite score is symmetric under swap of operands.
type Weights struct {
	Embedding     float64 `yaml:"embedding" json:"embedding"`
	Histogram     float64 `yaml:"histogram" json:"histogram"`
	AspectRatio   float64 `yaml:"aspect_ratio" json:"aspect_ratio"`
	Resolution    float64 `yaml:"resolution" json:"resolution"`
	ColorDistance float64 `yaml:"color_distance" json:"color_distance"`
}

// Validate checks that the weights form a valid configuration.
func (w Weights) Validate() error {
	entries := []struct {
		name  string
		value float64
	}{
		{"embedding", w.Embedding},
		{"histogram", w.Histogram},
		{"aspect_ratio", w.AspectRatio},
		{"resolution", w.Resolution},
		{"color_distance", w.ColorDistance},
	}

	sum := 0.0
	for _, e := range entries {
		if e.value < 0 {
			return fmt.Errorf("%w: %s weight is negative (%f)", ErrInvalidWeights, e.name, e.value)
		}
		sum += e.value
	}

	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("%w: weights sum to %f, want 1.0", ErrInvalidWeights, sum)
	}
	return nil
}

// Symmetric reports whether scoring with these weights is symmetric under
// swap of operands.
func (w Weights) Symmetric() bool {
	return w.Resolution == 0
}

// WithoutEmbedding redistributes the embedding weight proportionally across
// the remaining sub-scores. Used when an embedding provider fails and the
// engine is configured to degrade instead of skipping the asset.
func (w Weights) WithoutEmbedding() (Weights, error) {
	if w.Embedding == 0 {
		return w, nil
	}
	rest := w.Histogram + w.AspectRatio + w.Resolution + w.ColorDistance
	if rest <= 0 {
		return Weights{}, fmt.Errorf("%w: embedding is the only weighted sub-score, cannot redistribute", ErrInvalidWeights)
	}
	factor := 1.0 / rest
	return Weights{
		Histogram:     w.Histogram * factor,
		AspectRatio:   w.AspectRatio * factor,
		Resolution:    w.Resolution * factor,
		ColorDistance: w.ColorDistance * factor,
	}, nil
}

// Scorer computes composite scores under a fixed weight configuration.
type Scorer struct {
	weights Weights
}

// New creates a scorer, validating the weights up front.
func New(weights Weights) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights}, nil
}

// Weights returns the scorer's weight configuration.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score computes the composite similarity of a and b in [0,1]. Operand a is
// the target (possibly-resized copy when the resolution term is weighted),
// b the candidate.
func (s *Scorer) Score(a, b *descriptor.Descriptor) float64 {
	w := s.weights
	score := 0.0
	if w.Embedding > 0 {
		score += w.Embedding * EmbeddingSimilarity(a.Embedding, b.Embedding)
	}
	if w.Histogram > 0 {
		score += w.Histogram * HistogramSimilarity(a.Histogram, b.Histogram)
	}
	if w.AspectRatio > 0 {
		score += w.AspectRatio * AspectRatioSimilarity(a.AspectRatio, b.AspectRatio)
	}
	if w.Resolution > 0 {
		score += w.Resolution * ResolutionScore(a, b)
	}
	if w.ColorDistance > 0 {
		score += w.ColorDistance * ColorDistanceScore(a.AverageColor, b.AverageColor)
	}
	return clamp01(score)
}

// EmbeddingSimilarity is the cosine similarity of two embedding vectors,
// clamped to [0,1]. Mismatched or empty vectors score 0.
func EmbeddingSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return clamp01(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// HistogramSimilarity is 1 − L1distance/2 for two unit-sum histograms. Two
// unit-sum non-negative vectors have L1 distance in [0,2], so the result is
// in [0,1]. Mismatched lengths score 0.
func HistogramSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var l1 float64
	for i := range a {
		l1 += math.Abs(a[i] - b[i])
	}
	return clamp01(1 - l1/2)
}

// AspectRatioSimilarity is 1 − min(|a−b|/2, 1).
func AspectRatioSimilarity(a, b float64) float64 {
	return 1 - math.Min(math.Abs(a-b)/2, 1)
}

// ResolutionScore is min(widthB/widthA, heightB/heightA), capped at 1.
// It rewards candidates at least as large as the target, for "find the
// original of this resized copy" matching.
func ResolutionScore(a, b *descriptor.Descriptor) float64 {
	if a.Width <= 0 || a.Height <= 0 {
		return 0
	}
	ratio := math.Min(
		float64(b.Width)/float64(a.Width),
		float64(b.Height)/float64(a.Height),
	)
	return clamp01(ratio)
}

// ColorDistanceScore is 1 − min(dist/√3, 1) where dist is the euclidean
// distance between average colors in the unit RGB cube.
func ColorDistanceScore(a, b [3]float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return 1 - math.Min(math.Sqrt(sum)/colorNormalization, 1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
