// Package store defines the asset store contract the matching engine consumes
// and provides filesystem and in-memory implementations.
package store

import (
	"context"
	"errors"
)

// ID is an opaque stable identifier for an image in the candidate pool.
type ID string

// ErrNotFound indicates the requested asset id is absent from the store.
var ErrNotFound = errors.New("asset not found")

// Metadata carries the cheap per-asset facts used for pre-filtering. It must
// be obtainable without fully decoding the image.
type Metadata struct {
	Width       int
	Height      int
	AspectRatio float64
}

// Filter restricts candidate listing.
type Filter struct {
	// Extensions limits results to the given lowercase file extensions
	// (including the dot, e.g. ".jpg"). Empty means all supported formats.
	Extensions []string

	// Limit caps the number of returned ids. Zero means no limit.
	Limit int
}

// AssetStore is the engine's view of an image collection. Implementations
// must return candidate ids in a stable order so that match results are
// reproducible across runs.
type AssetStore interface {
	// Fetch returns the encoded image bytes for an asset.
	Fetch(ctx context.Context, id ID) ([]byte, error)

	// Metadata returns cheap metadata without decoding all pixels.
	Metadata(ctx context.Context, id ID) (*Metadata, error)

	// List returns candidate ids matching the filter, in insertion order.
	List(ctx context.Context, filter Filter) ([]ID, error)
}
