package database

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/photo-matcher/internal/descriptor"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 0.0},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 1.0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, 2.0},
		{"scaled identical", []float32{1, 2, 3}, []float32{2, 4, 6}, 0.0},
		{"empty", nil, nil, 2.0},
		{"dimension mismatch", []float32{1, 0}, []float32{1, 0, 0}, 2.0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 0, 0}, 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineDistance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func testDescriptor(id string, embedding []float32) StoredDescriptor {
	return StoredDescriptor{
		AssetID:   store.ID(id),
		Embedding: embedding,
		Histogram: make([]float64, descriptor.HistogramBins),
		Width:     100,
		Height:    100,
		CreatedAt: time.Now(),
	}
}

func TestHNSWIndexSearch(t *testing.T) {
	index := NewHNSWIndex()
	index.Build([]StoredDescriptor{
		testDescriptor("a", []float32{1, 0, 0}),
		testDescriptor("b", []float32{0.9, 0.1, 0}),
		testDescriptor("c", []float32{0, 1, 0}),
		testDescriptor("d", []float32{0, 0, 1}),
	})

	if index.Len() != 4 {
		t.Fatalf("expected 4 entries, got %d", index.Len())
	}

	results, distances, err := index.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].AssetID != "a" {
		t.Errorf("expected nearest 'a', got %q", results[0].AssetID)
	}
	if results[1].AssetID != "b" {
		t.Errorf("expected second nearest 'b', got %q", results[1].AssetID)
	}
	if len(distances) != 2 {
		t.Fatalf("expected 2 distances, got %d", len(distances))
	}
	if distances[0] > distances[1] {
		t.Errorf("distances not sorted: %v", distances)
	}
	if distances[0] > 1e-6 {
		t.Errorf("expected near-zero distance for exact match, got %v", distances[0])
	}
}

func TestHNSWIndexAddAndDelete(t *testing.T) {
	index := NewHNSWIndex()
	index.Build([]StoredDescriptor{
		testDescriptor("a", []float32{1, 0, 0}),
	})

	d := testDescriptor("b", []float32{0, 1, 0})
	index.Add(&d)
	if index.Len() != 2 {
		t.Fatalf("expected 2 entries after add, got %d", index.Len())
	}

	index.Delete("a")
	if index.Len() != 1 {
		t.Fatalf("expected 1 entry after delete, got %d", index.Len())
	}

	results, _, err := index.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	for _, r := range results {
		if r.AssetID == "a" {
			t.Error("deleted entry returned from search")
		}
	}
}

func TestHNSWIndexSkipsEmptyEmbeddings(t *testing.T) {
	index := NewHNSWIndex()
	index.Build([]StoredDescriptor{
		testDescriptor("a", []float32{1, 0, 0}),
		testDescriptor("no-embedding", nil),
	})

	if index.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", index.Len())
	}
}

func TestHNSWIndexSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.hnsw")

	descriptors := []StoredDescriptor{
		testDescriptor("a", []float32{1, 0, 0}),
		testDescriptor("b", []float32{0, 1, 0}),
	}

	index := NewHNSWIndex()
	index.Build(descriptors)
	index.SetPath(path)
	if err := index.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	restored := NewHNSWIndex()
	if err := restored.Load(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	restored.Attach(descriptors)

	if restored.Len() != 2 {
		t.Fatalf("expected 2 entries after load, got %d", restored.Len())
	}

	results, _, err := restored.Search([]float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].AssetID != "b" {
		t.Errorf("unexpected search result after load: %+v", results)
	}
}

func TestStoredDescriptorRoundTrip(t *testing.T) {
	d := &descriptor.Descriptor{
		Embedding:    []float32{0.1, 0.2},
		Histogram:    []float64{0.5, 0.5, 0, 0, 0, 0, 0, 0},
		AverageColor: [3]float64{0.25, 0.5, 0.75},
		Width:        640,
		Height:       480,
		AspectRatio:  640.0 / 480.0,
	}

	stored := NewStoredDescriptor("photos/x.jpg", d, "scene-labels")
	if stored.AssetID != "photos/x.jpg" {
		t.Errorf("unexpected asset id %q", stored.AssetID)
	}
	if stored.Model != "scene-labels" {
		t.Errorf("unexpected model %q", stored.Model)
	}

	back := stored.Descriptor()
	if back.Width != 640 || back.Height != 480 {
		t.Errorf("dimensions lost: %dx%d", back.Width, back.Height)
	}
	if back.AspectRatio != 640.0/480.0 {
		t.Errorf("aspect ratio not recomputed: %v", back.AspectRatio)
	}
	if len(back.Embedding) != 2 || back.Embedding[1] != 0.2 {
		t.Errorf("embedding lost: %v", back.Embedding)
	}
	if back.AverageColor != d.AverageColor {
		t.Errorf("average color lost: %v", back.AverageColor)
	}
}
