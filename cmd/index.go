package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-matcher/internal/config"
	"github.com/kozaktomas/photo-matcher/internal/database"
	"github.com/kozaktomas/photo-matcher/internal/database/postgres"
	"github.com/kozaktomas/photo-matcher/internal/descriptor"
	"github.com/kozaktomas/photo-matcher/internal/embedding"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

// indexUploadSize bounds the longer image side sent to embedding providers.
const indexUploadSize = 800

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Precompute photo descriptors into the database",
	Long: `Extract descriptors for every photo in a directory and store them in the
configured database (PostgreSQL or MariaDB). Later matching sessions over
the same library can then seed candidates by embedding instead of
re-extracting everything.

Examples:
  # Index a library
  photo-matcher index --dir ~/photos

  # Recompute descriptors that already exist
  photo-matcher index --dir ~/photos --force`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().String("dir", "", "Directory with photos to index (required)")
	indexCmd.Flags().Int("concurrency", 4, "Number of photos processed in parallel")
	indexCmd.Flags().Int("limit", 0, "Maximum number of photos to index (0 = all)")
	indexCmd.Flags().Bool("force", false, "Recompute descriptors that are already stored")
	_ = indexCmd.MarkFlagRequired("dir")
}

func runIndex(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	concurrency := mustGetInt(cmd, "concurrency")
	limit := mustGetInt(cmd, "limit")
	force := mustGetBool(cmd, "force")

	appCfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	assets, err := store.NewFSStore(dir)
	if err != nil {
		return err
	}

	ids, err := assets.List(ctx, store.Filter{Limit: limit})
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no images found in %s", dir)
	}

	provider, err := newEmbeddingProvider(ctx, appCfg)
	if err != nil {
		return err
	}

	repo, closeRepo, err := openDescriptorRepository(ctx, appCfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	model := ""
	if provider != nil {
		model = provider.Name()
	}

	fmt.Printf("Indexing %d photos from %s\n", len(ids), dir)

	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetDescription("Indexing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var mu sync.Mutex
	var indexed, skipped int
	var errs []error

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(id store.ID) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() { _ = bar.Add(1) }()

			if !force {
				has, err := repo.Has(ctx, id)
				if err == nil && has {
					mu.Lock()
					skipped++
					mu.Unlock()
					return
				}
			}

			d, err := buildDescriptor(ctx, assets, provider, id)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				mu.Unlock()
				return
			}

			if err := repo.Upsert(ctx, database.NewStoredDescriptor(id, d, model)); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				mu.Unlock()
				return
			}

			mu.Lock()
			indexed++
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	_ = bar.Finish()
	fmt.Println()

	fmt.Printf("Indexed %d photos, skipped %d already stored, %d failed\n", indexed, skipped, len(errs))
	for _, err := range errs {
		fmt.Printf("  %v\n", err)
	}

	if pgRepo, ok := repo.(*postgres.DescriptorRepository); ok && appCfg.Database.HNSWIndexPath != "" {
		fmt.Printf("Building HNSW index at %s\n", appCfg.Database.HNSWIndexPath)
		if err := pgRepo.EnableHNSW(ctx, appCfg.Database.HNSWIndexPath); err != nil {
			return fmt.Errorf("building HNSW index: %w", err)
		}
		if err := pgRepo.SaveHNSW(); err != nil {
			return fmt.Errorf("saving HNSW index: %w", err)
		}
	}

	return ctx.Err()
}

// buildDescriptor fetches, extracts and optionally embeds one asset.
func buildDescriptor(ctx context.Context, assets store.AssetStore, provider embedding.Provider, id store.ID) (*descriptor.Descriptor, error) {
	data, err := assets.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	d, err := descriptor.Extract(data)
	if err != nil {
		return nil, err
	}

	if provider != nil {
		upload, err := descriptor.ResizeForUpload(data, indexUploadSize)
		if err != nil {
			upload = data
		}
		vec, err := provider.Embed(ctx, upload)
		if err != nil {
			return nil, err
		}
		d.Embedding = vec
	}

	return d, nil
}
