package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-matcher/internal/cache"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

// DescriptorsHandler exposes descriptors already computed in the session
// cache. It never triggers extraction; a miss is a 404.
type DescriptorsHandler struct {
	cache *cache.Cache
}

// NewDescriptorsHandler creates a descriptors handler.
func NewDescriptorsHandler(c *cache.Cache) *DescriptorsHandler {
	return &DescriptorsHandler{cache: c}
}

// Get returns the cached descriptor for an asset. Asset ids contain
// slashes, so the route matches the rest of the path as a wildcard.
func (h *DescriptorsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := store.ID(chi.URLParam(r, "*"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing asset id")
		return
	}

	desc, ok := h.cache.Peek(id)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("no descriptor cached for %q", id))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"asset_id":   id,
		"descriptor": desc,
	})
}
