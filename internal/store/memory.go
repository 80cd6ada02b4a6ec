package store

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory asset store used in tests and by the web API for
// uploaded candidate pools. Ids keep insertion order.
type Memory struct {
	mu     sync.RWMutex
	ids    []ID
	assets map[ID][]byte
	meta   map[ID]*Metadata

	// FetchErr, when set, is returned by Fetch for every id.
	FetchErr error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		assets: make(map[ID][]byte),
		meta:   make(map[ID]*Metadata),
	}
}

// Add registers an asset with its encoded bytes and metadata. Adding an
// existing id replaces its content but keeps its position.
func (s *Memory) Add(id ID, data []byte, meta Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[id]; !ok {
		s.ids = append(s.ids, id)
	}
	s.assets[id] = data
	s.meta[id] = &meta
}

// Fetch returns the encoded bytes for an asset.
func (s *Memory) Fetch(ctx context.Context, id ID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.assets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return data, nil
}

// Metadata returns the registered metadata for an asset.
func (s *Memory) Metadata(ctx context.Context, id ID) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meta[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, nil
}

// List returns all ids in insertion order.
func (s *Memory) List(ctx context.Context, filter Filter) ([]ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ID, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, id)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
