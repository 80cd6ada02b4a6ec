// Package embedding provides pluggable image embedding backends. An embedding
// is a fixed-length vector summarizing the perceptual content of an image;
// the matching engine only requires that all vectors in a session come from
// the same provider and have the same length.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbeddingFailed indicates the external embedding capability could not
// produce a vector for an image. Depending on engine configuration this
// either drops the embedding sub-score or skips the asset; it never aborts
// a batch.
var ErrEmbeddingFailed = errors.New("embedding failed")

// Provider defines the interface for embedding backends.
type Provider interface {
	// Name identifies the backend (model name or endpoint).
	Name() string

	// Dim returns the vector length the provider produces, or 0 if
	// unknown before the first call.
	Dim() int

	// Embed computes the embedding vector for an encoded image.
	Embed(ctx context.Context, imageData []byte) ([]float32, error)
}

// Noop is a Provider that produces no embeddings. Use it when no embedding
// backend is available; scorer configurations without an embedding weight
// work unchanged.
type Noop struct{}

func (Noop) Name() string { return "noop" }
func (Noop) Dim() int     { return 0 }

func (Noop) Embed(ctx context.Context, imageData []byte) ([]float32, error) {
	return nil, ErrEmbeddingFailed
}
