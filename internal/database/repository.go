package database

import (
	"context"

	"github.com/kozaktomas/photo-matcher/internal/store"
)

// DescriptorRepository is the persistence contract shared by the postgres
// and mariadb backends.
type DescriptorRepository interface {
	// Get returns the stored descriptor for an asset, or nil if absent.
	Get(ctx context.Context, id store.ID) (*StoredDescriptor, error)

	// Has reports whether a descriptor exists for the asset.
	Has(ctx context.Context, id store.ID) (bool, error)

	// Count returns the number of stored descriptors.
	Count(ctx context.Context) (int, error)

	// Upsert stores or replaces the descriptor for an asset.
	Upsert(ctx context.Context, d StoredDescriptor) error

	// Delete removes the descriptor for an asset. Deleting an absent id
	// is not an error.
	Delete(ctx context.Context, id store.ID) error

	// All returns every stored descriptor, in asset id order.
	All(ctx context.Context) ([]StoredDescriptor, error)

	// FindSimilar returns up to limit descriptors closest to the query
	// embedding by cosine distance, together with their distances,
	// nearest first.
	FindSimilar(ctx context.Context, embedding []float32, limit int) ([]StoredDescriptor, []float64, error)
}
