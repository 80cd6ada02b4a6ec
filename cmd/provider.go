package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-matcher/internal/cache"
	"github.com/kozaktomas/photo-matcher/internal/config"
	"github.com/kozaktomas/photo-matcher/internal/database"
	"github.com/kozaktomas/photo-matcher/internal/database/mariadb"
	"github.com/kozaktomas/photo-matcher/internal/database/postgres"
	"github.com/kozaktomas/photo-matcher/internal/embedding"
)

// newEmbeddingProvider builds the embedding provider selected by the
// configuration. Returns nil for the "none" provider: matching then runs on
// visual features alone.
func newEmbeddingProvider(ctx context.Context, cfg *config.Config) (embedding.Provider, error) {
	switch cfg.Embedding.Provider {
	case "", "none":
		return nil, nil
	case "http":
		return embedding.NewHTTPProvider(cfg.Embedding.URL), nil
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN is required for the openai embedding provider")
		}
		return embedding.NewOpenAIProvider(cfg.OpenAI.Token), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini embedding provider")
		}
		return embedding.NewGeminiProvider(ctx, cfg.Gemini.APIKey)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (expected http, openai, gemini or none)", cfg.Embedding.Provider)
	}
}

// seedFromDatabase warms a session cache with descriptors persisted by the
// index command, so unchanged photos skip fetch-and-extract. A missing or
// unreachable database is not fatal: the session just starts cold.
func seedFromDatabase(ctx context.Context, cfg *config.Config, descriptors *cache.Cache) int {
	if cfg.Database.URL == "" {
		return 0
	}

	repo, closeRepo, err := openDescriptorRepository(ctx, cfg)
	if err != nil {
		fmt.Printf("Warning: descriptor database unavailable, extracting from scratch: %v\n", err)
		return 0
	}
	defer closeRepo()

	stored, err := repo.All(ctx)
	if err != nil {
		fmt.Printf("Warning: failed to load stored descriptors: %v\n", err)
		return 0
	}

	for i := range stored {
		descriptors.Seed(stored[i].AssetID, stored[i].Descriptor())
	}
	return len(stored)
}

// openDescriptorRepository connects the configured database backend and
// returns the repository plus a close function.
func openDescriptorRepository(ctx context.Context, cfg *config.Config) (database.DescriptorRepository, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := postgres.NewPool(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		return postgres.NewDescriptorRepository(pool), func() { pool.Close() }, nil
	case "mariadb":
		pool, err := mariadb.NewPool(cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to MariaDB: %w", err)
		}
		if err := pool.EnsureSchema(ctx); err != nil {
			_ = pool.Close()
			return nil, nil, fmt.Errorf("creating schema: %w", err)
		}
		return mariadb.NewDescriptorRepository(pool), func() { _ = pool.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q (expected postgres or mariadb)", cfg.Database.Driver)
	}
}
