package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/photo-matcher/internal/cache"
	"github.com/kozaktomas/photo-matcher/internal/config"
	"github.com/kozaktomas/photo-matcher/internal/descriptor"
	"github.com/kozaktomas/photo-matcher/internal/matcher"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	assets := store.NewMemory()
	descriptors := cache.New()
	engine := matcher.New(assets, descriptors, nil)
	return NewServer(config.Load(), engine, assets, descriptors, "127.0.0.1", 0)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestPresetsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/presets", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body == "" {
		t.Error("expected a response body")
	}
}

func TestDescriptorsEndpoint(t *testing.T) {
	assets := store.NewMemory()
	descriptors := cache.New()
	descriptors.Seed("2023/beach.jpg", &descriptor.Descriptor{
		Histogram:    []float64{1},
		AverageColor: [3]float64{0.5, 0.25, 0.125},
		Width:        1920,
		Height:       1080,
		AspectRatio:  1920.0 / 1080.0,
	})
	engine := matcher.New(assets, descriptors, nil)
	s := NewServer(config.Load(), engine, assets, descriptors, "127.0.0.1", 0)

	// Asset ids contain slashes; the route must capture the whole path.
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/descriptors/2023/beach.jpg", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		AssetID    store.ID              `json:"asset_id"`
		Descriptor descriptor.Descriptor `json:"descriptor"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.AssetID != "2023/beach.jpg" {
		t.Errorf("asset_id = %s; want 2023/beach.jpg", body.AssetID)
	}
	if body.Descriptor.Width != 1920 {
		t.Errorf("descriptor width = %d; want 1920", body.Descriptor.Width)
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/descriptors/missing.jpg", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for uncached asset, got %d", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
