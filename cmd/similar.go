package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-matcher/internal/config"
	"github.com/kozaktomas/photo-matcher/internal/database/postgres"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

var similarCmd = &cobra.Command{
	Use:   "similar [asset-id]",
	Short: "Find indexed photos similar to a photo",
	Long: `Find photos similar to a given photo using the embeddings persisted
by the index command. Lower distance values indicate more similar images.

Prerequisites:
- Run 'photo-matcher index' with an embedding provider configured

Examples:
  # Find photos similar to one photo
  photo-matcher similar 2023/beach.jpg

  # Use stricter distance cutoff (lower = more similar)
  photo-matcher similar 2023/beach.jpg --max-distance 0.15

  # Limit results
  photo-matcher similar 2023/beach.jpg --limit 10

  # Output as JSON
  photo-matcher similar 2023/beach.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(similarCmd)

	similarCmd.Flags().Float64("max-distance", 0.3, "Maximum cosine distance for similarity (lower = more similar)")
	similarCmd.Flags().Int("limit", 20, "Maximum number of results")
	similarCmd.Flags().Bool("json", false, "Output as JSON")
}

// similarResult is a single neighbor in the similar command output.
type similarResult struct {
	AssetID    store.ID `json:"asset_id"`
	Distance   float64  `json:"distance"`
	Similarity float64  `json:"similarity"` // 1 - distance, for easier interpretation
}

// similarOutput is the JSON output structure of the similar command.
type similarOutput struct {
	Source      store.ID        `json:"source"`
	MaxDistance float64         `json:"max_distance"`
	Results     []similarResult `json:"results"`
	Count       int             `json:"count"`
}

func runSimilar(cmd *cobra.Command, args []string) error {
	maxDistance := mustGetFloat64(cmd, "max-distance")
	limit := mustGetInt(cmd, "limit")
	jsonOutput := mustGetBool(cmd, "json")

	source := store.ID(args[0])
	appCfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openDescriptorRepository(ctx, appCfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	target, err := repo.Get(ctx, source)
	if err != nil {
		return fmt.Errorf("loading descriptor for %s: %w", source, err)
	}
	if target == nil {
		return fmt.Errorf("photo %s is not indexed, run 'photo-matcher index' first", source)
	}
	if len(target.Embedding) == 0 {
		return fmt.Errorf("photo %s has no embedding, re-index with an embedding provider configured", source)
	}

	// A saved index file answers neighbor queries in memory without a
	// round trip per query. Falling back to database queries keeps the
	// command working when the file is stale or missing.
	if pg, ok := repo.(*postgres.DescriptorRepository); ok && appCfg.Database.HNSWIndexPath != "" {
		if err := pg.LoadHNSW(ctx, appCfg.Database.HNSWIndexPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load index file, querying the database: %v\n", err)
		}
	}

	// The query matches the source photo itself at distance zero, so ask
	// for one extra neighbor and drop it from the results.
	neighbors, distances, err := repo.FindSimilar(ctx, target.Embedding, limit+1)
	if err != nil {
		return fmt.Errorf("similarity search: %w", err)
	}

	results := make([]similarResult, 0, len(neighbors))
	for i, n := range neighbors {
		if n.AssetID == source {
			continue
		}
		if distances[i] > maxDistance {
			continue
		}
		if len(results) == limit {
			break
		}
		results = append(results, similarResult{
			AssetID:    n.AssetID,
			Distance:   distances[i],
			Similarity: 1 - distances[i],
		})
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(similarOutput{
			Source:      source,
			MaxDistance: maxDistance,
			Results:     results,
			Count:       len(results),
		})
	}

	if len(results) == 0 {
		fmt.Printf("No photos within distance %.2f of %s\n", maxDistance, source)
		return nil
	}

	fmt.Printf("Photos similar to %s:\n\n", source)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ASSET\tDISTANCE\tSIMILARITY")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%.4f\t%.1f%%\n", r.AssetID, r.Distance, r.Similarity*100)
	}
	w.Flush()
	fmt.Printf("\n%d similar photos found\n", len(results))
	return nil
}
