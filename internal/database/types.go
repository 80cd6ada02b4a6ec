// Package database defines descriptor persistence. The matching core works
// entirely from its session cache; these repositories let repeated sessions
// over the same library skip extraction and pre-select candidates by
// embedding.
package database

import (
	"time"

	"github.com/kozaktomas/photo-matcher/internal/descriptor"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

// StoredDescriptor is a persisted image descriptor.
type StoredDescriptor struct {
	AssetID      store.ID
	Embedding    []float32
	Histogram    []float64
	AverageColor [3]float64
	Width        int
	Height       int
	Model        string // embedding provider that produced the vector
	CreatedAt    time.Time
}

// Descriptor converts the stored row back into the in-memory form.
func (s *StoredDescriptor) Descriptor() *descriptor.Descriptor {
	d := &descriptor.Descriptor{
		Embedding:    s.Embedding,
		Histogram:    s.Histogram,
		AverageColor: s.AverageColor,
		Width:        s.Width,
		Height:       s.Height,
	}
	if s.Height > 0 {
		d.AspectRatio = float64(s.Width) / float64(s.Height)
	}
	return d
}

// NewStoredDescriptor builds a row from a computed descriptor.
func NewStoredDescriptor(id store.ID, d *descriptor.Descriptor, model string) StoredDescriptor {
	return StoredDescriptor{
		AssetID:      id,
		Embedding:    d.Embedding,
		Histogram:    d.Histogram,
		AverageColor: d.AverageColor,
		Width:        d.Width,
		Height:       d.Height,
		Model:        model,
		CreatedAt:    time.Now(),
	}
}
