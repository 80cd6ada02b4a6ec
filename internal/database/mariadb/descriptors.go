package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/kozaktomas/photo-matcher/internal/database"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

// DescriptorRepository provides MariaDB-backed descriptor storage. Vectors
// are stored JSON-encoded; similarity search is a full scan with cosine
// distance computed in Go.
type DescriptorRepository struct {
	pool *Pool
}

// NewDescriptorRepository creates a repository on the given pool.
func NewDescriptorRepository(pool *Pool) *DescriptorRepository {
	return &DescriptorRepository{pool: pool}
}

const descriptorColumns = "asset_id, embedding_json, histogram_json, average_color_json, width, height, model, created_at"

func scanDescriptor(scan func(dest ...any) error) (*database.StoredDescriptor, error) {
	var d database.StoredDescriptor
	var assetID string
	var embeddingJSON, histogramJSON, avgColorJSON []byte

	err := scan(
		&assetID,
		&embeddingJSON,
		&histogramJSON,
		&avgColorJSON,
		&d.Width,
		&d.Height,
		&d.Model,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.AssetID = store.ID(assetID)
	if len(embeddingJSON) > 0 {
		if err := json.Unmarshal(embeddingJSON, &d.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", assetID, err)
		}
	}
	if err := json.Unmarshal(histogramJSON, &d.Histogram); err != nil {
		return nil, fmt.Errorf("decode histogram for %s: %w", assetID, err)
	}
	var avgColor []float64
	if err := json.Unmarshal(avgColorJSON, &avgColor); err != nil {
		return nil, fmt.Errorf("decode average color for %s: %w", assetID, err)
	}
	if len(avgColor) == 3 {
		copy(d.AverageColor[:], avgColor)
	}
	return &d, nil
}

// Get returns the stored descriptor for an asset, or nil if absent.
func (r *DescriptorRepository) Get(ctx context.Context, id store.ID) (*database.StoredDescriptor, error) {
	row := r.pool.db.QueryRowContext(ctx,
		"SELECT "+descriptorColumns+" FROM descriptors WHERE asset_id = ?", string(id))

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
	var one int
	err := r.pool.db.QueryRowContext(ctx,
		"SELECT 1 FROM descriptors WHERE asset_id = ?", string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check descriptor exists: %w", err)
	}
	return true, nil
}

// Count returns the number of stored descriptors.
func (r *DescriptorRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM descriptors").Scan(&count); err != nil {
		return 0, fmt.Errorf("count descriptors: %w", err)
	}
	return count, nil
}

// Upsert stores or replaces the descriptor for an asset.
func (r *DescriptorRepository) Upsert(ctx context.Context, d database.StoredDescriptor) error {
	var embeddingJSON []byte
	if len(d.Embedding) > 0 {
		var err error
		embeddingJSON, err = json.Marshal(d.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
	}
	histogramJSON, err := json.Marshal(d.Histogram)
	if err != nil {
		return fmt.Errorf("marshal histogram: %w", err)
	}
	avgColorJSON, err := json.Marshal(d.AverageColor[:])
	if err != nil {
		return fmt.Errorf("marshal average color: %w", err)
	}

	_, err = r.pool.db.ExecContext(ctx, `
		INSERT INTO descriptors (asset_id, embedding_json, histogram_json, average_color_json, width, height, model)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			embedding_json = VALUES(embedding_json),
			histogram_json = VALUES(histogram_json),
			average_color_json = VALUES(average_color_json),
			width = VALUES(width),
			height = VALUES(height),
			model = VALUES(model),
			created_at = CURRENT_TIMESTAMP
	`,
		string(d.AssetID),
		embeddingJSON,
		histogramJSON,
		avgColorJSON,
		d.Width,
		d.Height,
		d.Model,
	)
	if err != nil {
		return fmt.Errorf("upsert descriptor: %w", err)
	}
	return nil
}

// Delete removes the descriptor for an asset.
func (r *DescriptorRepository) Delete(ctx context.Context, id store.ID) error {
	if _, err := r.pool.db.ExecContext(ctx, "DELETE FROM descriptors WHERE asset_id = ?", string(id)); err != nil {
		return fmt.Errorf("delete descriptor: %w", err)
	}
	return nil
}

// All returns every stored descriptor in asset id order.
func (r *DescriptorRepository) All(ctx context.Context) ([]database.StoredDescriptor, error) {
	rows, err := r.pool.db.QueryContext(ctx,
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
// by cosine distance, scanning all rows with embeddings.
func (r *DescriptorRepository) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]database.StoredDescriptor, []float64, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, nil, err
	}

	type scored struct {
		desc     database.StoredDescriptor
		distance float64
	}
	var candidates []scored
	for _, d := range all {
		if len(d.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, scored{
			desc:     d,
			distance: database.CosineDistance(embedding, d.Embedding),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].desc.AssetID < candidates[j].desc.AssetID
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]database.StoredDescriptor, 0, len(candidates))
	distances := make([]float64, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.desc)
		distances = append(distances, c.distance)
	}
	return out, distances, nil
}
