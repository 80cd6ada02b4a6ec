package config

import (
	"os"
	"testing"
)

func TestLoadPresets(t *testing.T) {
	cfg := Load()

	for _, name := range []string{"duplicate", "strict-duplicate", "similar", "loose"} {
		preset, err := cfg.Matching.Preset(name)
		if err != nil {
			t.Fatalf("Preset(%q) failed: %v", name, err)
		}
		if err := preset.Weights.Validate(); err != nil {
			t.Errorf("preset %q has invalid weights: %v", name, err)
		}
		if preset.TopK < 1 {
			t.Errorf("preset %q has top_k %d; want >= 1", name, preset.TopK)
		}
		if preset.Threshold <= 0 || preset.Threshold > 1 {
			t.Errorf("preset %q has threshold %f; want (0,1]", name, preset.Threshold)
		}
		if preset.Bands == nil {
			t.Errorf("preset %q has no bands attached", name)
		}
	}
}

func TestPresetUnknown(t *testing.T) {
	cfg := Load()
	if _, err := cfg.Matching.Preset("no-such-preset"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestBandsFromPresetsFile(t *testing.T) {
	cfg := Load()

	tests := []struct {
		score    float64
		expected string
	}{
		{0.99, "exact"},
		{0.95, "near-duplicate"},
		{0.75, "similar"},
		{0.1, "partial"},
	}
	for _, tc := range tests {
		if got := cfg.Matching.Bands.Label(tc.score); got != tc.expected {
			t.Errorf("Label(%f) = %s; want %s", tc.score, got, tc.expected)
		}
	}
}

func TestDatabaseDefaults(t *testing.T) {
	os.Unsetenv("DATABASE_MAX_OPEN_CONNS")
	os.Unsetenv("DATABASE_MAX_IDLE_CONNS")
	os.Unsetenv("DATABASE_DRIVER")

	cfg := Load()
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("MaxOpenConns = %d; want 25", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns != 5 {
		t.Errorf("MaxIdleConns = %d; want 5", cfg.Database.MaxIdleConns)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %s; want postgres", cfg.Database.Driver)
	}
}

func TestEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected int
	}{
		{"unset", "", 7},
		{"valid", "12", 12},
		{"invalid", "twelve", 7},
		{"negative", "-3", 7},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			key := "PHOTO_MATCHER_TEST_ENV_INT"
			if tc.value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, tc.value)
				defer os.Unsetenv(key)
			}
			if got := envInt(key, 7); got != tc.expected {
				t.Errorf("envInt = %d; want %d", got, tc.expected)
			}
		})
	}
}
