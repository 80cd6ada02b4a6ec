// Package cache provides a session-scoped descriptor cache. It guarantees
// the fetch-and-extract pipeline runs at most once per asset id, even under
// concurrent requests, using per-key compute-once slots instead of a single
// global lock.
package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kozaktomas/photo-matcher/internal/descriptor"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

// Fetcher produces the descriptor for an asset. It is invoked at most once
// per asset id per session.
type Fetcher func(ctx context.Context) (*descriptor.Descriptor, error)

// entry is a compute-once slot for a single asset id. The first caller owns
// the computation; everyone else waits on done. desc and err are written
// exactly once, before done is closed.
type entry struct {
	done chan struct{}
	desc *descriptor.Descriptor
	err  error
}

// Cache memoizes descriptors per asset id for the lifetime of one matching
// session. Failures are cached too, so a permanently undecodable asset is
// extracted only once. Create a new Cache per session and discard it when
// the session ends.
type Cache struct {
	session string

	mu      sync.Mutex
	entries map[store.ID]*entry
}

// New creates an empty cache with a fresh session id.
func New() *Cache {
	return &Cache{
		session: uuid.NewString(),
		entries: make(map[store.ID]*entry),
	}
}

// Session returns the unique id of this cache session.
func (c *Cache) Session() string {
	return c.session
}

// GetOrCompute returns the cached descriptor for id, computing it with fetch
// if absent. Concurrent callers for the same id share a single computation:
// one runs fetch, the rest block until it finishes. A caller whose context
// expires while waiting returns early; the in-flight computation still runs
// to completion and its result is cached.
func (c *Cache) GetOrCompute(ctx context.Context, id store.ID, fetch Fetcher) (*descriptor.Descriptor, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if ok {
		c.mu.Unlock()
		select {
		case <-e.done:
			return e.desc, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e = &entry{done: make(chan struct{})}
	c.entries[id] = e
	c.mu.Unlock()

	e.desc, e.err = fetch(ctx)

	// A context error is the caller's failure, not the asset's. Drop the
	// slot so a later request with a live context can retry.
	if e.err != nil && ctx.Err() != nil {
		c.mu.Lock()
		delete(c.entries, id)
		c.mu.Unlock()
	}

	close(e.done)
	return e.desc, e.err
}

// Seed registers an already-computed descriptor, so sessions warmed from
// persisted descriptors skip fetch-and-extract entirely. An existing entry
// wins: the slot is write-once like any other.
func (c *Cache) Seed(id store.ID, desc *descriptor.Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; ok {
		return
	}
	e := &entry{done: make(chan struct{}), desc: desc}
	close(e.done)
	c.entries[id] = e
}

// Peek returns the cached descriptor for id without computing. The second
// return value reports whether a completed entry exists; in-flight
// computations are not visible.
func (c *Cache) Peek(id store.ID) (*descriptor.Descriptor, bool) {
	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.done:
		return e.desc, e.err == nil
	default:
		return nil, false
	}
}

// Recheck discards any cached result for id and recomputes it. Use this only
// when the source pixel data may actually have changed, which should not
// happen mid-session.
func (c *Cache) Recheck(ctx context.Context, id store.ID, fetch Fetcher) (*descriptor.Descriptor, error) {
	c.mu.Lock()
	old, ok := c.entries[id]
	if ok {
		// Let an in-flight computation finish before replacing it, so
		// no key is ever half-written.
		c.mu.Unlock()
		select {
		case <-old.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.Lock()
		if c.entries[id] == old {
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()

	return c.GetOrCompute(ctx, id, fetch)
}

// Len returns the number of completed or in-flight entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
