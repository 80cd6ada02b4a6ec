package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/photo-matcher/internal/matcher"
)

//go:embed presets.yaml
var presetsYAML []byte

type Config struct {
	Embedding EmbeddingConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Database  DatabaseConfig
	Matching  MatchingConfig
}

type EmbeddingConfig struct {
	// Provider selects the embedding backend: "http", "openai", "gemini"
	// or "none".
	Provider string
	URL      string // embedding server URL for the http provider
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type DatabaseConfig struct {
	Driver        string // "postgres" or "mariadb"
	URL           string
	MaxOpenConns  int    // default 25
	MaxIdleConns  int    // default 5
	HNSWIndexPath string // optional path to persist the descriptor HNSW index
}

// MatchingConfig carries the named presets and score bands from the embedded
// presets file.
type MatchingConfig struct {
	Presets map[string]matcher.Config `yaml:"presets"`
	Bands   matcher.Bands             `yaml:"bands"`
}

// Preset returns a copy of the named preset with the global bands attached.
func (m *MatchingConfig) Preset(name string) (matcher.Config, error) {
	preset, ok := m.Presets[name]
	if !ok {
		return matcher.Config{}, fmt.Errorf("unknown matching preset %q (available: %v)", name, m.PresetNames())
	}
	if preset.Bands == nil {
		preset.Bands = m.Bands
	}
	return preset, nil
}

// PresetNames returns the available preset names, sorted.
func (m *MatchingConfig) PresetNames() []string {
	names := make([]string, 0, len(m.Presets))
	for name := range m.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	var matching MatchingConfig
	if err := yaml.Unmarshal(presetsYAML, &matching); err != nil {
		// This is an embedded file so this error should never happen
		// in practice.
		panic("failed to unmarshal embedded presets.yaml: " + err.Error())
	}

	return &Config{
		Embedding: EmbeddingConfig{
			Provider: envDefault("EMBEDDING_PROVIDER", "none"),
			URL:      os.Getenv("EMBEDDING_URL"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Database: DatabaseConfig{
			Driver:        envDefault("DATABASE_DRIVER", "postgres"),
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Matching: matching,
	}
}
