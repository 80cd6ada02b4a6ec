package handlers

import (
	"net/http"

	"github.com/kozaktomas/photo-matcher/internal/cache"
	"github.com/kozaktomas/photo-matcher/internal/config"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

// PresetsHandler exposes the configured matching presets.
type PresetsHandler struct {
	matching *config.MatchingConfig
}

// NewPresetsHandler creates a presets handler.
func NewPresetsHandler(matching *config.MatchingConfig) *PresetsHandler {
	return &PresetsHandler{matching: matching}
}

// List returns the available preset names and their configurations.
func (h *PresetsHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"names":   h.matching.PresetNames(),
		"presets": h.matching.Presets,
		"bands":   h.matching.Bands,
	})
}

// StatsHandler reports library and session cache statistics.
type StatsHandler struct {
	assets store.AssetStore
	cache  *cache.Cache
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(assets store.AssetStore, c *cache.Cache) *StatsHandler {
	return &StatsHandler{assets: assets, cache: c}
}

// Get returns asset and cache counts.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ids, err := h.assets.List(r.Context(), store.Filter{})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"assets":             len(ids),
		"cached_descriptors": h.cache.Len(),
		"session":            h.cache.Session(),
	})
}
