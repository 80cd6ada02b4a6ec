package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kozaktomas/photo-matcher/internal/descriptor"
)

func testDescriptor(width, height int) *descriptor.Descriptor {
	return &descriptor.Descriptor{
		Histogram:   make([]float64, descriptor.HistogramBins),
		Width:       width,
		Height:      height,
		AspectRatio: float64(width) / float64(height),
	}
}

func TestGetOrComputeRunsOnce(t *testing.T) {
	c := New()
	var calls int32

	fetch := func(ctx context.Context) (*descriptor.Descriptor, error) {
		atomic.AddInt32(&calls, 1)
		return testDescriptor(10, 10), nil
	}

	for i := 0; i < 3; i++ {
		d, err := c.GetOrCompute(context.Background(), "photo-1", fetch)
		if err != nil {
			t.Fatalf("GetOrCompute failed: %v", err)
		}
		if d == nil {
			t.Fatal("GetOrCompute returned nil descriptor")
		}
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetch ran %d times; want 1", got)
	}
}

func TestGetOrComputeConcurrent(t *testing.T) {
	c := New()
	var calls int32
	release := make(chan struct{})

	fetch := func(ctx context.Context) (*descriptor.Descriptor, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return testDescriptor(20, 10), nil
	}

	const workers = 32
	results := make([]*descriptor.Descriptor, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := c.GetOrCompute(context.Background(), "photo-1", fetch)
			if err != nil {
				t.Errorf("worker %d: GetOrCompute failed: %v", i, err)
				return
			}
			results[i] = d
		}(i)
	}

	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetch ran %d times under concurrency; want 1", got)
	}

	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Errorf("worker %d observed a different descriptor instance", i)
		}
	}
}

func TestFailureIsCached(t *testing.T) {
	c := New()
	var calls int32

	fetch := func(ctx context.Context) (*descriptor.Descriptor, error) {
		atomic.AddInt32(&calls, 1)
		return nil, descriptor.ErrExtractionFailed
	}

	for i := 0; i < 3; i++ {
		_, err := c.GetOrCompute(context.Background(), "broken", fetch)
		if !errors.Is(err, descriptor.ErrExtractionFailed) {
			t.Fatalf("expected ErrExtractionFailed, got %v", err)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetch ran %d times for a failed asset; want 1", got)
	}
}

func TestContextErrorNotCached(t *testing.T) {
	c := New()
	var calls int32

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetch := func(ctx context.Context) (*descriptor.Descriptor, error) {
		atomic.AddInt32(&calls, 1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return testDescriptor(10, 10), nil
	}

	if _, err := c.GetOrCompute(ctx, "photo-1", fetch); err == nil {
		t.Fatal("expected error with cancelled context")
	}

	// A fresh context must retry the computation.
	d, err := c.GetOrCompute(context.Background(), "photo-1", fetch)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if d == nil {
		t.Fatal("retry returned nil descriptor")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("fetch ran %d times; want 2", got)
	}
}

func TestSeedSkipsComputation(t *testing.T) {
	c := New()
	seeded := testDescriptor(100, 100)
	c.Seed("photo-1", seeded)

	got, err := c.GetOrCompute(context.Background(), "photo-1", func(ctx context.Context) (*descriptor.Descriptor, error) {
		t.Error("fetch must not run for a seeded id")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != seeded {
		t.Error("expected the seeded descriptor instance")
	}
}

func TestSeedDoesNotOverwrite(t *testing.T) {
	c := New()

	first := testDescriptor(100, 100)
	got, err := c.GetOrCompute(context.Background(), "photo-1", func(ctx context.Context) (*descriptor.Descriptor, error) {
		return first, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Seed("photo-1", testDescriptor(50, 50))

	peeked, ok := c.Peek("photo-1")
	if !ok {
		t.Fatal("expected a completed entry")
	}
	if peeked != got || peeked != first {
		t.Error("seeding an existing id must keep the original entry")
	}
}

func TestPeek(t *testing.T) {
	c := New()

	if _, ok := c.Peek("photo-1"); ok {
		t.Error("Peek on empty cache reported a hit")
	}

	_, err := c.GetOrCompute(context.Background(), "photo-1", func(ctx context.Context) (*descriptor.Descriptor, error) {
		return testDescriptor(10, 10), nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}

	d, ok := c.Peek("photo-1")
	if !ok || d == nil {
		t.Error("Peek missed a completed entry")
	}
}

func TestRecheckForcesRecompute(t *testing.T) {
	c := New()
	var calls int32

	fetch := func(ctx context.Context) (*descriptor.Descriptor, error) {
		n := atomic.AddInt32(&calls, 1)
		return testDescriptor(int(n)*10, 10), nil
	}

	d1, err := c.GetOrCompute(context.Background(), "photo-1", fetch)
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}

	d2, err := c.Recheck(context.Background(), "photo-1", fetch)
	if err != nil {
		t.Fatalf("Recheck failed: %v", err)
	}

	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("fetch ran %d times; want 2 after Recheck", calls)
	}
	if d1.Width == d2.Width {
		t.Error("Recheck returned the stale descriptor")
	}
}

func TestSessionsAreDistinct(t *testing.T) {
	a, b := New(), New()
	if a.Session() == "" {
		t.Error("session id is empty")
	}
	if a.Session() == b.Session() {
		t.Error("two caches share a session id")
	}
}
