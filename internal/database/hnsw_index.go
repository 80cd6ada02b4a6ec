package database

import (
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/photo-matcher/internal/store"
)

// hnswMaxNeighbors is the M parameter of the HNSW graph.
const hnswMaxNeighbors = 16

// HNSWIndex is an in-memory approximate nearest neighbor index over stored
// descriptor embeddings. Repositories use it to answer FindSimilar without a
// full scan; it can be persisted to disk and reloaded between runs.
type HNSWIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[store.ID]
	byID  map[store.ID]*StoredDescriptor
	path  string // save/load location, empty disables persistence
}

// NewHNSWIndex creates an empty index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		byID: make(map[store.ID]*StoredDescriptor),
	}
}

func newGraph() *hnsw.Graph[store.ID] {
	g := hnsw.NewGraph[store.ID]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index content with the given descriptors. Rows without
// embeddings are skipped.
func (h *HNSWIndex) Build(descriptors []StoredDescriptor) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.byID = make(map[store.ID]*StoredDescriptor, len(descriptors))
	if len(descriptors) == 0 {
		h.graph = nil
		return
	}

	g := newGraph()
	for i := range descriptors {
		d := &descriptors[i]
		if len(d.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(d.AssetID, d.Embedding))
		h.byID[d.AssetID] = d
	}
	h.graph = g
}

// Add inserts or updates a single descriptor.
func (h *HNSWIndex) Add(d *StoredDescriptor) {
	if len(d.Embedding) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(d.AssetID, d.Embedding))
	h.byID[d.AssetID] = d
}

// Delete removes a descriptor from lookups. The graph node stays behind but
// is filtered out of search results.
func (h *HNSWIndex) Delete(id store.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byID, id)
}

// Len returns the number of indexed descriptors.
func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// Search returns up to k stored descriptors nearest to the query embedding,
// with cosine distances, nearest first.
func (h *HNSWIndex) Search(query []float32, k int) ([]StoredDescriptor, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil, fmt.Errorf("index not initialized")
	}

	neighbors := h.graph.Search(query, k)

	results := make([]StoredDescriptor, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		d, ok := h.byID[n.Key]
		if !ok {
			// Deleted after indexing.
			continue
		}
		results = append(results, *d)
		distances = append(distances, CosineDistance(query, n.Value))
	}

	return results, distances, nil
}

// Attach registers descriptor rows for result lookups without touching the
// graph. Use after Load, which restores only the graph structure.
func (h *HNSWIndex) Attach(descriptors []StoredDescriptor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range descriptors {
		d := &descriptors[i]
		if len(d.Embedding) == 0 {
			continue
		}
		h.byID[d.AssetID] = d
	}
}

// SetPath sets where Save writes the graph.
func (h *HNSWIndex) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

// Save persists the graph to the configured path. A nil graph removes any
// stale file.
func (h *HNSWIndex) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.path == "" {
		return nil
	}

	if h.graph == nil {
		_ = os.Remove(h.path)
		return nil
	}

	f, err := os.Create(h.path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("exporting graph: %w", err)
	}
	return nil
}

// Load reads a previously saved graph. Load restores only the graph
// structure; descriptor rows must be re-registered with Attach.
func (h *HNSWIndex) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	g := newGraph()
	if err := g.Import(f); err != nil {
		return fmt.Errorf("importing graph: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = g
	h.path = path
	return nil
}
