// Package matcher orchestrates image similarity matching: candidate
// pre-filtering, concurrent descriptor resolution and scoring, threshold
// filtering, ranking and top-K truncation across one or more targets.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/photo-matcher/internal/cache"
	"github.com/kozaktomas/photo-matcher/internal/descriptor"
	"github.com/kozaktomas/photo-matcher/internal/embedding"
	"github.com/kozaktomas/photo-matcher/internal/scorer"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

// maxEmbedUploadSize caps the image dimension sent to the embedding
// provider.
const maxEmbedUploadSize = 800

// Engine finds the best matches for target images in a candidate pool. It
// holds a non-owning reference to a session cache; descriptors computed for
// one invocation are reused by the next as long as the cache lives.
type Engine struct {
	assets   store.AssetStore
	cache    *cache.Cache
	provider embedding.Provider // nil when no embedding backend is configured

	state atomic.Int32
}

// New creates an engine. provider may be nil; configurations with an
// embedding weight then degrade per the configured policy.
func New(assets store.AssetStore, c *cache.Cache, provider embedding.Provider) *Engine {
	return &Engine{
		assets:   assets,
		cache:    c,
		provider: provider,
	}
}

// State returns the lifecycle state of the most recent FindMatches call, or
// StateIdle before the first one. With concurrent invocations the value
// tracks whichever call touched it last; per-invocation state is reported
// authoritatively in each call's Result. Safe to call from any goroutine.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// errorCollector gathers per-asset failures, deduplicated per category.
type errorCollector struct {
	mu   sync.Mutex
	seen map[string]bool
	errs ErrorSummary
}

func newErrorCollector() *errorCollector {
	return &errorCollector{seen: make(map[string]bool)}
}

func (c *errorCollector) record(category string, id store.ID, list *[]store.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := category + ":" + string(id)
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	*list = append(*list, id)
}

func (c *errorCollector) notFound(id store.ID)         { c.record("not_found", id, &c.errs.NotFound) }
func (c *errorCollector) extractionFailed(id store.ID) { c.record("extraction", id, &c.errs.ExtractionFailed) }
func (c *errorCollector) embeddingFailed(id store.ID)  { c.record("embedding", id, &c.errs.EmbeddingFailed) }
func (c *errorCollector) failedTarget(id store.ID)     { c.record("target", id, &c.errs.FailedTargets) }

// classify routes a descriptor resolution error into the right summary
// bucket.
func (c *errorCollector) classify(id store.ID, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		// Batch abort, not an asset failure.
	case errors.Is(err, store.ErrNotFound):
		c.notFound(id)
	case errors.Is(err, embedding.ErrEmbeddingFailed):
		c.embeddingFailed(id)
	default:
		c.extractionFailed(id)
	}
}

// FindMatches scores every target against the candidate pool and returns a
// ranked, thresholded, truncated match group per target. Per-asset failures
// are absorbed into the result's error summary; only configuration errors
// fail the whole call. On cancellation the partial result computed so far is
// returned together with the context error.
func (e *Engine) FindMatches(ctx context.Context, targets []store.ID, pool []store.ID, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	primary, err := scorer.New(cfg.Weights)
	if err != nil {
		return nil, err
	}

	// Fallback scorer for pairs that lost their embedding. Nil when the
	// weights make no use of embeddings, or when nothing remains to
	// redistribute to (embedding-only weights force the skip path).
	var fallback *scorer.Scorer
	if cfg.Weights.Embedding > 0 {
		if fw, ferr := cfg.Weights.WithoutEmbedding(); ferr == nil {
			fallback, _ = scorer.New(fw)
		}
	}

	bands := cfg.Bands
	if bands == nil {
		bands = DefaultBands()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	policy := cfg.OnEmbeddingError
	if policy == "" {
		policy = EmbeddingErrorRedistribute
	}

	e.state.Store(int32(StateRunning))

	collector := newErrorCollector()
	result := &Result{Groups: make(map[store.ID]Group, len(targets))}

	var progressMu sync.Mutex
	var processed int
	reportProgress := func(target store.ID) {
		progressMu.Lock()
		processed++
		current := processed
		progressMu.Unlock()
		if cfg.OnProgress != nil {
			cfg.OnProgress(ProgressInfo{Current: current, Total: len(targets), Target: target})
		}
	}

	var aborted bool
	for _, target := range targets {
		if ctx.Err() != nil {
			aborted = true
			break
		}

		group := e.matchTarget(ctx, target, pool, cfg, primary, fallback, bands, concurrency, policy, collector)
		result.Groups[target] = group
		reportProgress(target)

		// Cancellation during the target's workers silently drops
		// unscored candidates; the group is partial and must not be
		// reported as a completed run.
		if ctx.Err() != nil {
			aborted = true
			break
		}
	}

	result.Errors = collector.errs

	if aborted || !result.Errors.Empty() {
		result.State = StatePartiallyFailed
	} else {
		result.State = StateCompleted
	}
	e.state.Store(int32(result.State))

	if aborted {
		return result, ctx.Err()
	}
	return result, nil
}

// matchTarget runs the full pipeline for a single target. Failures are
// recorded and produce an empty group; they never propagate.
func (e *Engine) matchTarget(
	ctx context.Context,
	target store.ID,
	pool []store.ID,
	cfg Config,
	primary, fallback *scorer.Scorer,
	bands Bands,
	concurrency int,
	policy EmbeddingErrorPolicy,
	collector *errorCollector,
) Group {
	group := Group{Source: target, Matches: []Candidate{}}

	targetDesc, err := e.cache.GetOrCompute(ctx, target, e.describe(target, policy, collector))
	if err != nil {
		collector.classify(target, err)
		collector.failedTarget(target)
		return group
	}

	candidates := e.prefilter(ctx, target, targetDesc, pool, cfg.Prefilter, collector)
	if len(candidates) == 0 {
		return group
	}

	type scored struct {
		index int
		score float64
		ok    bool
	}

	resultsChan := make(chan scored, len(candidates))
	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, id := range candidates {
		wg.Add(1)
		go func(idx int, id store.ID) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			// Stop dispatching new comparisons once cancelled;
			// in-flight cache computations still complete.
			if ctx.Err() != nil {
				resultsChan <- scored{index: idx}
				return
			}

			candDesc, err := e.cache.GetOrCompute(ctx, id, e.describe(id, policy, collector))
			if err != nil {
				collector.classify(id, err)
				resultsChan <- scored{index: idx}
				return
			}

			s := primary
			if cfg.Weights.Embedding > 0 &&
				(len(targetDesc.Embedding) == 0 || len(candDesc.Embedding) == 0) {
				if fallback == nil {
					// Nothing to redistribute to; treat the
					// pair as unscorable.
					collector.embeddingFailed(id)
					resultsChan <- scored{index: idx}
					return
				}
				s = fallback
			}

			resultsChan <- scored{index: idx, score: s.Score(targetDesc, candDesc), ok: true}
		}(i, id)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	kept := make([]scored, 0, len(candidates))
	for r := range resultsChan {
		if r.ok && r.score >= cfg.Threshold {
			kept = append(kept, r)
		}
	}

	// Deterministic ranking: score descending, pool order breaks ties.
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].score != kept[j].score {
			return kept[i].score > kept[j].score
		}
		return kept[i].index < kept[j].index
	})

	if len(kept) > cfg.TopK {
		kept = kept[:cfg.TopK]
	}

	for _, r := range kept {
		group.Matches = append(group.Matches, Candidate{
			ID:     candidates[r.index],
			Score:  r.score,
			Reason: bands.Label(r.score),
		})
	}

	return group
}

// prefilter drops the target itself and candidates whose cheap metadata
// fails the configured tolerances, before any descriptor extraction cost is
// paid. Order is preserved.
func (e *Engine) prefilter(
	ctx context.Context,
	target store.ID,
	targetDesc *descriptor.Descriptor,
	pool []store.ID,
	pf Prefilter,
	collector *errorCollector,
) []store.ID {
	out := make([]store.ID, 0, len(pool))
	for _, id := range pool {
		if id == target {
			continue
		}
		if pf.AspectTolerance == 0 && pf.MinResolutionRatio == 0 {
			out = append(out, id)
			continue
		}

		meta, err := e.assets.Metadata(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				collector.notFound(id)
			} else {
				collector.extractionFailed(id)
			}
			continue
		}

		if pf.AspectTolerance > 0 {
			diff := targetDesc.AspectRatio - meta.AspectRatio
			if diff < 0 {
				diff = -diff
			}
			if diff > pf.AspectTolerance {
				continue
			}
		}

		if pf.MinResolutionRatio > 0 {
			wr := float64(meta.Width) / float64(targetDesc.Width)
			hr := float64(meta.Height) / float64(targetDesc.Height)
			if wr < pf.MinResolutionRatio || hr < pf.MinResolutionRatio {
				continue
			}
		}

		out = append(out, id)
	}
	return out
}

// describe builds the cache fetcher for an asset: fetch bytes, extract the
// descriptor, attach the embedding when a provider is configured. The cache
// guarantees it runs at most once per asset per session.
func (e *Engine) describe(id store.ID, policy EmbeddingErrorPolicy, collector *errorCollector) cache.Fetcher {
	return func(ctx context.Context) (*descriptor.Descriptor, error) {
		data, err := e.assets.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}

		d, err := descriptor.Extract(data)
		if err != nil {
			return nil, err
		}

		if e.provider == nil {
			return d, nil
		}

		resized, err := descriptor.ResizeForUpload(data, maxEmbedUploadSize)
		if err != nil {
			resized = data
		}

		vec, err := e.provider.Embed(ctx, resized)
		if err != nil {
			if policy == EmbeddingErrorSkip {
				return nil, fmt.Errorf("%w: asset %s", embedding.ErrEmbeddingFailed, id)
			}
			// Degrade: keep the descriptor without an embedding and
			// let scoring redistribute the weight.
			collector.embeddingFailed(id)
			return d, nil
		}
		d.Embedding = vec

		return d, nil
	}
}
