package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOriginAllowed(t *testing.T) {
	allowed := map[string]struct{}{
		"https://photos.example.com": {},
	}

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"empty origin", "", false},
		{"localhost", "http://localhost", true},
		{"localhost with port", "http://localhost:5173", true},
		{"https localhost", "https://localhost:8443", true},
		{"whitelisted", "https://photos.example.com", true},
		{"unknown", "https://evil.example.com", false},
		{"localhost lookalike", "http://localhost.evil.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := originAllowed(tt.origin, allowed); got != tt.want {
				t.Errorf("originAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight request reached handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/match", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("unexpected Allow-Origin %q", got)
	}
}
