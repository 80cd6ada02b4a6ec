package descriptor

import "errors"

// HistogramBins is the number of color histogram buckets. Each RGB channel is
// quantized to 2 levels and the 3-bit combination selects one of 8 buckets.
const HistogramBins = 8

// ErrExtractionFailed indicates an image could not be decoded or contained no
// pixels. Callers must treat the asset as having no descriptor; the error is
// never fatal to a batch.
var ErrExtractionFailed = errors.New("descriptor extraction failed")

// Descriptor holds the perceptual features computed for a single image.
// Descriptors are immutable after creation and safe to share across
// goroutines without locking.
type Descriptor struct {
	// Embedding is a fixed-length vector from an external embedding model.
	// Empty when no embedding provider is configured.
	Embedding []float32 `json:"embedding,omitempty"`

	// Histogram is the normalized color bucket distribution. It has
	// HistogramBins entries, each non-negative, summing to 1.
	Histogram []float64 `json:"histogram"`

	// AverageColor is the per-channel mean (R, G, B), each in [0,1].
	AverageColor [3]float64 `json:"average_color"`

	Width  int `json:"width"`
	Height int `json:"height"`

	// AspectRatio is Width / Height.
	AspectRatio float64 `json:"aspect_ratio"`
}
