package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/photo-matcher/internal/database"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

// DescriptorRepository provides PostgreSQL-backed descriptor storage with an
// optional in-memory HNSW index for similarity search.
type DescriptorRepository struct {
	pool *Pool

	hnswMu      sync.RWMutex
	hnswIndex   *database.HNSWIndex
	hnswEnabled bool
}

// NewDescriptorRepository creates a repository on the given pool.
func NewDescriptorRepository(pool *Pool) *DescriptorRepository {
	return &DescriptorRepository{pool: pool}
}

// nullVector scans a possibly-NULL pgvector column.
type nullVector struct {
	vec   pgvector.Vector
	valid bool
}

func (n *nullVector) Scan(src any) error {
	if src == nil {
		return nil
	}
	n.valid = true
	return n.vec.Scan(src)
}

// embeddingValue converts an embedding slice to the insert parameter,
// mapping empty to NULL.
func embeddingValue(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

func scanDescriptor(scan func(dest ...any) error) (*database.StoredDescriptor, error) {
	var d database.StoredDescriptor
	var assetID string
	var vec nullVector
	var histogram, avgColor []float64

	err := scan(
		&assetID,
		&vec,
		pq.Array(&histogram),
		pq.Array(&avgColor),
		&d.Width,
		&d.Height,
		&d.Model,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.AssetID = store.ID(assetID)
	if vec.valid {
		d.Embedding = vec.vec.Slice()
	}
	d.Histogram = histogram
	if len(avgColor) == 3 {
		copy(d.AverageColor[:], avgColor)
	}
	return &d, nil
}

const descriptorColumns = "asset_id, embedding, histogram, average_color, width, height, model, created_at"

// Get returns the stored descriptor for an asset, or nil if absent.
func (r *DescriptorRepository) Get(ctx context.Context, id store.ID) (*database.StoredDescriptor, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+descriptorColumns+" FROM descriptors WHERE asset_id = $1", string(id))

	d, err := scanDescriptor(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query descriptor: %w", err)
	}
	return d, nil
}

// Has reports whether a descriptor exists for the asset.
func (r *DescriptorRepository) Has(ctx context.Context, id store.ID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM descriptors WHERE asset_id = $1)", string(id)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check descriptor exists: %w", err)
	}
	return exists, nil
}

// Count returns the number of stored descriptors.
func (r *DescriptorRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM descriptors").Scan(&count); err != nil {
		return 0, fmt.Errorf("count descriptors: %w", err)
	}
	return count, nil
}

// Upsert stores or replaces the descriptor for an asset.
func (r *DescriptorRepository) Upsert(ctx context.Context, d database.StoredDescriptor) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO descriptors (asset_id, embedding, histogram, average_color, width, height, model)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (asset_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			histogram = EXCLUDED.histogram,
			average_color = EXCLUDED.average_color,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			model = EXCLUDED.model,
			created_at = NOW()
	`,
		string(d.AssetID),
		embeddingValue(d.Embedding),
		pq.Array(d.Histogram),
		pq.Array(d.AverageColor[:]),
		d.Width,
		d.Height,
		d.Model,
	)
	if err != nil {
		return fmt.Errorf("upsert descriptor: %w", err)
	}

	r.hnswMu.Lock()
	if r.hnswEnabled && r.hnswIndex != nil {
		stored := d
		r.hnswIndex.Add(&stored)
	}
	r.hnswMu.Unlock()

	return nil
}

// Delete removes the descriptor for an asset.
func (r *DescriptorRepository) Delete(ctx context.Context, id store.ID) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM descriptors WHERE asset_id = $1", string(id)); err != nil {
		return fmt.Errorf("delete descriptor: %w", err)
	}

	r.hnswMu.Lock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Delete(id)
	}
	r.hnswMu.Unlock()

	return nil
}

// All returns every stored descriptor in asset id order.
func (r *DescriptorRepository) All(ctx context.Context) ([]database.StoredDescriptor, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+descriptorColumns+" FROM descriptors ORDER BY asset_id")
	if err != nil {
		return nil, fmt.Errorf("query descriptors: %w", err)
	}
	defer rows.Close()

	var out []database.StoredDescriptor
	for rows.Next() {
		d, err := scanDescriptor(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate descriptors: %w", err)
	}
	return out, nil
}

// FindSimilar returns up to limit descriptors nearest to the query embedding
// by cosine distance. Uses the in-memory HNSW index when enabled, otherwise
// pgvector's <=> operator.
func (r *DescriptorRepository) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]database.StoredDescriptor, []float64, error) {
	r.hnswMu.RLock()
	index := r.hnswIndex
	enabled := r.hnswEnabled && index != nil
	r.hnswMu.RUnlock()

	if enabled {
		return index.Search(embedding, limit)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+descriptorColumns+`, embedding <=> $1 AS distance
		FROM descriptors
		WHERE embedding IS NOT NULL
		ORDER BY distance
		LIMIT $2
	`, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var out []database.StoredDescriptor
	var distances []float64
	for rows.Next() {
		var d database.StoredDescriptor
		var assetID string
		var vec nullVector
		var histogram, avgColor []float64
		var distance float64

		err := rows.Scan(
			&assetID,
			&vec,
			pq.Array(&histogram),
			pq.Array(&avgColor),
			&d.Width,
			&d.Height,
			&d.Model,
			&d.CreatedAt,
			&distance,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("scan similar descriptor: %w", err)
		}

		d.AssetID = store.ID(assetID)
		if vec.valid {
			d.Embedding = vec.vec.Slice()
		}
		d.Histogram = histogram
		if len(avgColor) == 3 {
			copy(d.AverageColor[:], avgColor)
		}
		out = append(out, d)
		distances = append(distances, distance)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate similar descriptors: %w", err)
	}
	return out, distances, nil
}

// EnableHNSW builds the in-memory index from all stored descriptors and
// routes FindSimilar through it. indexPath, when non-empty, is where the
// index is persisted on SaveHNSW.
func (r *DescriptorRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	all, err := r.All(ctx)
	if err != nil {
		return fmt.Errorf("load descriptors for index: %w", err)
	}

	index := database.NewHNSWIndex()
	index.Build(all)
	index.SetPath(indexPath)

	r.hnswMu.Lock()
	r.hnswIndex = index
	r.hnswEnabled = true
	r.hnswMu.Unlock()

	return nil
}

// LoadHNSW restores a previously saved index from indexPath and routes
// FindSimilar through it. The graph file carries only the structure, so
// descriptor rows are re-attached from the database.
func (r *DescriptorRepository) LoadHNSW(ctx context.Context, indexPath string) error {
	index := database.NewHNSWIndex()
	if err := index.Load(indexPath); err != nil {
		return err
	}

	all, err := r.All(ctx)
	if err != nil {
		return fmt.Errorf("load descriptors for index: %w", err)
	}
	index.Attach(all)

	r.hnswMu.Lock()
	r.hnswIndex = index
	r.hnswEnabled = true
	r.hnswMu.Unlock()

	return nil
}

// SaveHNSW persists the in-memory index, if enabled.
func (r *DescriptorRepository) SaveHNSW() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if !r.hnswEnabled || r.hnswIndex == nil {
		return nil
	}
	return r.hnswIndex.Save()
}
