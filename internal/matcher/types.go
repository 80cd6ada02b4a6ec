package matcher

import (
	"fmt"

	"github.com/kozaktomas/photo-matcher/internal/scorer"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

// State describes where an engine invocation is in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StatePartiallyFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StatePartiallyFailed:
		return "partially_failed"
	default:
		return "unknown"
	}
}

// Candidate is one scored match for a target.
type Candidate struct {
	ID     store.ID `json:"id"`
	Score  float64  `json:"score"`
	Reason string   `json:"reason"`
}

// Group holds the ranked matches for one target, descending by score,
// at most TopK entries. An empty Matches slice is a normal result, not an
// error.
type Group struct {
	Source  store.ID    `json:"source"`
	Matches []Candidate `json:"matches"`
}

// Band maps a minimum score to a categorical reason label.
type Band struct {
	Min   float64 `yaml:"min" json:"min"`
	Label string  `yaml:"label" json:"label"`
}

// Bands is an ordered list of score bands, highest minimum first.
type Bands []Band

// DefaultBands returns the standard reason labels.
func DefaultBands() Bands {
	return Bands{
		{Min: 0.98, Label: "exact"},
		{Min: 0.9, Label: "near-duplicate"},
		{Min: 0.7, Label: "similar"},
		{Min: 0, Label: "partial"},
	}
}

// Label returns the label of the highest band whose minimum the score meets.
func (b Bands) Label(score float64) string {
	for _, band := range b {
		if score >= band.Min {
			return band.Label
		}
	}
	return "partial"
}

// Prefilter configures the cheap metadata checks applied to candidates
// before paying for descriptor extraction. Zero values disable a check.
type Prefilter struct {
	// AspectTolerance is the maximum allowed |targetRatio − candidateRatio|.
	AspectTolerance float64 `yaml:"aspect_tolerance" json:"aspect_tolerance"`

	// MinResolutionRatio is the minimum candidate/target size ratio on both
	// axes. Use e.g. 0.9 when hunting for equal-or-higher-resolution
	// originals.
	MinResolutionRatio float64 `yaml:"min_resolution_ratio" json:"min_resolution_ratio"`
}

// EmbeddingErrorPolicy selects how the engine reacts when the embedding
// provider fails for an asset.
type EmbeddingErrorPolicy string

const (
	// EmbeddingErrorRedistribute drops the embedding sub-score for affected
	// pairs and renormalizes the remaining weights.
	EmbeddingErrorRedistribute EmbeddingErrorPolicy = "redistribute"

	// EmbeddingErrorSkip excludes the affected asset from matching.
	EmbeddingErrorSkip EmbeddingErrorPolicy = "skip"
)

// ProgressInfo is passed to the progress callback as targets complete.
// Current is monotonic and safe to observe from any goroutine.
type ProgressInfo struct {
	Current int
	Total   int
	Target  store.ID
}

// Config controls one FindMatches invocation.
type Config struct {
	// Threshold is the minimum composite score to report.
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// TopK caps the number of matches per target. Must be at least 1.
	TopK int `yaml:"top_k" json:"top_k"`

	Weights   scorer.Weights `yaml:"weights" json:"weights"`
	Prefilter Prefilter      `yaml:"prefilter" json:"prefilter"`

	// Bands configures reason labels. Nil means DefaultBands.
	Bands Bands `yaml:"bands" json:"bands,omitempty"`

	// Concurrency bounds the scoring worker pool. Zero means GOMAXPROCS.
	Concurrency int `yaml:"concurrency" json:"concurrency,omitempty"`

	// OnEmbeddingError defaults to EmbeddingErrorRedistribute.
	OnEmbeddingError EmbeddingErrorPolicy `yaml:"on_embedding_error" json:"on_embedding_error,omitempty"`

	// OnProgress, when set, is invoked after each target finishes.
	OnProgress func(ProgressInfo) `yaml:"-" json:"-"`
}

func (c *Config) validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1, got %d", c.TopK)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %f", c.Threshold)
	}
	switch c.OnEmbeddingError {
	case "", EmbeddingErrorRedistribute, EmbeddingErrorSkip:
	default:
		return fmt.Errorf("unknown embedding error policy %q", c.OnEmbeddingError)
	}
	return nil
}

// ErrorSummary reports the per-asset failures absorbed during one
// invocation. Ids may repeat across fields when an asset failed in more than
// one role.
type ErrorSummary struct {
	NotFound         []store.ID `json:"not_found,omitempty"`
	ExtractionFailed []store.ID `json:"extraction_failed,omitempty"`
	EmbeddingFailed  []store.ID `json:"embedding_failed,omitempty"`
	FailedTargets    []store.ID `json:"failed_targets,omitempty"`
}

// Total returns the number of recorded failures.
func (e *ErrorSummary) Total() int {
	return len(e.NotFound) + len(e.ExtractionFailed) + len(e.EmbeddingFailed) + len(e.FailedTargets)
}

// Empty reports whether no failures were recorded.
func (e *ErrorSummary) Empty() bool {
	return e.Total() == 0
}

// Result is the outcome of one FindMatches invocation.
type Result struct {
	// Groups holds one entry per requested target, including targets that
	// failed (with an empty match list).
	Groups map[store.ID]Group `json:"groups"`

	// Errors summarizes absorbed per-asset failures.
	Errors ErrorSummary `json:"errors"`

	// State is StateCompleted or StatePartiallyFailed.
	State State `json:"state"`
}
