package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-matcher/internal/cache"
	"github.com/kozaktomas/photo-matcher/internal/config"
	"github.com/kozaktomas/photo-matcher/internal/matcher"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

func encodeSolidPNG(t *testing.T, c color.RGBA, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func newTestHandler(t *testing.T) (*MatchHandler, *store.Memory) {
	t.Helper()

	assets := store.NewMemory()
	red := encodeSolidPNG(t, color.RGBA{R: 255, A: 255}, 10, 10)
	blue := encodeSolidPNG(t, color.RGBA{B: 255, A: 255}, 10, 10)
	assets.Add("red1.png", red, store.Metadata{Width: 10, Height: 10, AspectRatio: 1})
	assets.Add("red2.png", red, store.Metadata{Width: 10, Height: 10, AspectRatio: 1})
	assets.Add("blue.png", blue, store.Metadata{Width: 10, Height: 10, AspectRatio: 1})

	engine := matcher.New(assets, cache.New(), nil)
	cfg := config.Load()

	return NewMatchHandler(engine, assets, &cfg.Matching, NewJobManager()), assets
}

func postMatch(t *testing.T, h *MatchHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/match", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.Match(rec, req)
	return rec
}

func TestMatchFindsDuplicate(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postMatch(t, h, `{"targets":["red1.png"],"preset":"duplicate"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp matchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.State != "completed" {
		t.Errorf("expected state 'completed', got %q", resp.State)
	}
	group, ok := resp.Groups["red1.png"]
	if !ok {
		t.Fatal("expected a group for red1.png")
	}
	if len(group.Matches) != 1 || group.Matches[0].ID != "red2.png" {
		t.Errorf("expected single match red2.png, got %+v", group.Matches)
	}
}

func TestMatchBadRequests(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{notjson`},
		{"empty targets", `{"targets":[]}`},
		{"unknown preset", `{"targets":["red1.png"],"preset":"nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postMatch(t, h, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestMatchThresholdOverride(t *testing.T) {
	h, _ := newTestHandler(t)

	// Threshold above any achievable score leaves the group empty.
	rec := postMatch(t, h, `{"targets":["blue.png"],"threshold":1.0,"top_k":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp matchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.Groups["blue.png"].Matches) != 0 {
		t.Errorf("expected no matches, got %+v", resp.Groups["blue.png"].Matches)
	}
}

func TestMatchJobLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)

	r := chi.NewRouter()
	r.Post("/match/jobs", h.Start)
	r.Get("/match/jobs/{jobId}", h.Status)
	r.Delete("/match/jobs/{jobId}", h.Cancel)

	body := bytes.NewReader([]byte(`{"targets":["red1.png"]}`))
	req := httptest.NewRequest(http.MethodPost, "/match/jobs", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var started map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	jobID := started["id"]
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	var job MatchJob
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/match/jobs/%s", jobID), nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
			t.Fatalf("failed to unmarshal job: %v", err)
		}
		if job.Status == JobStatusCompleted || job.Status == JobStatusFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, status %q", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if job.Status != JobStatusCompleted {
		t.Fatalf("expected completed job, got %q: %s", job.Status, job.Error)
	}
	if job.Result == nil {
		t.Fatal("expected a job result")
	}
	if len(job.Result.Groups["red1.png"].Matches) != 1 {
		t.Errorf("expected one match, got %+v", job.Result.Groups["red1.png"].Matches)
	}
	if job.Progress != 1 || job.Total != 1 {
		t.Errorf("expected progress 1/1, got %d/%d", job.Progress, job.Total)
	}
}

func TestMatchJobNotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	r := chi.NewRouter()
	r.Get("/match/jobs/{jobId}", h.Status)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/match/jobs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
