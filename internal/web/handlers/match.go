package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-matcher/internal/config"
	"github.com/kozaktomas/photo-matcher/internal/matcher"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

// MatchHandler serves matching requests, both synchronous and as async jobs.
type MatchHandler struct {
	engine   *matcher.Engine
	assets   store.AssetStore
	matching *config.MatchingConfig
	jobs     *JobManager
}

// NewMatchHandler creates a match handler.
func NewMatchHandler(engine *matcher.Engine, assets store.AssetStore, matching *config.MatchingConfig, jobs *JobManager) *MatchHandler {
	return &MatchHandler{
		engine:   engine,
		assets:   assets,
		matching: matching,
		jobs:     jobs,
	}
}

type matchRequest struct {
	// Targets are the assets to find matches for.
	Targets []store.ID `json:"targets"`

	// Pool restricts the candidate set. Empty means every asset in the store.
	Pool []store.ID `json:"pool,omitempty"`

	// Preset names a matching preset; "duplicate" when empty.
	Preset string `json:"preset,omitempty"`

	// Threshold and TopK override the preset when set.
	Threshold *float64 `json:"threshold,omitempty"`
	TopK      *int     `json:"top_k,omitempty"`
}

type matchResponse struct {
	State  string                     `json:"state"`
	Groups map[store.ID]matcher.Group `json:"groups"`
	Errors matcher.ErrorSummary       `json:"errors"`
}

func newMatchResponse(result *matcher.Result) *matchResponse {
	if result == nil {
		return nil
	}
	return &matchResponse{
		State:  result.State.String(),
		Groups: result.Groups,
		Errors: result.Errors,
	}
}

// resolve validates the request and builds the engine inputs.
func (h *MatchHandler) resolve(ctx context.Context, req matchRequest) ([]store.ID, []store.ID, matcher.Config, error) {
	if len(req.Targets) == 0 {
		return nil, nil, matcher.Config{}, errors.New("targets must not be empty")
	}

	preset := req.Preset
	if preset == "" {
		preset = "duplicate"
	}
	cfg, err := h.matching.Preset(preset)
	if err != nil {
		return nil, nil, matcher.Config{}, err
	}
	if req.Threshold != nil {
		cfg.Threshold = *req.Threshold
	}
	if req.TopK != nil {
		cfg.TopK = *req.TopK
	}

	pool := req.Pool
	if len(pool) == 0 {
		pool, err = h.assets.List(ctx, store.Filter{})
		if err != nil {
			return nil, nil, matcher.Config{}, fmt.Errorf("listing assets: %w", err)
		}
	}

	return req.Targets, pool, cfg, nil
}

// Match runs a matching request synchronously.
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	targets, pool, cfg, err := h.resolve(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.engine.FindMatches(r.Context(), targets, pool, cfg)
	if err != nil && result == nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, newMatchResponse(result))
}

// Start launches an async matching job and returns its id.
func (h *MatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	targets, pool, cfg, err := h.resolve(r.Context(), req)
	if err != nil {
		cancel()
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := h.jobs.Create(req, cancel)
	cfg.OnProgress = job.setProgress

	go func() {
		defer cancel()

		job.mu.Lock()
		job.Status = JobStatusRunning
		job.mu.Unlock()

		result, err := h.engine.FindMatches(ctx, targets, pool, cfg)
		switch {
		case errors.Is(err, context.Canceled):
			job.finish(JobStatusCancelled, newMatchResponse(result), nil)
		case err != nil:
			log.Printf("match job %s failed: %v", job.ID, err)
			job.finish(JobStatusFailed, nil, err)
		default:
			job.finish(JobStatusCompleted, newMatchResponse(result), nil)
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{"id": job.ID})
}

// Status returns the state of an async job, including its result when done.
func (h *MatchHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.Get(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// Cancel aborts an async job. The job stays queryable until deleted.
func (h *MatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.Get(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]string{"status": string(JobStatusCancelled)})
}
