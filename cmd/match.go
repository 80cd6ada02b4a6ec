package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-matcher/internal/cache"
	"github.com/kozaktomas/photo-matcher/internal/config"
	"github.com/kozaktomas/photo-matcher/internal/matcher"
	"github.com/kozaktomas/photo-matcher/internal/store"
)

var matchCmd = &cobra.Command{
	Use:   "match [target...]",
	Short: "Find matches for photos in a directory pool",
	Long: `Find duplicates and visually similar photos.

Targets are paths relative to the pool directory. Without targets, every
photo in the pool is matched against all the others.

Examples:
  # Find duplicates of one photo in a library
  photo-matcher match --dir ~/photos 2023/beach.jpg

  # Full-library duplicate scan
  photo-matcher match --dir ~/photos

  # Looser matching with a different preset
  photo-matcher match --dir ~/photos --preset similar

  # Machine-readable output
  photo-matcher match --dir ~/photos --json`,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("dir", "", "Directory with the photo pool (required)")
	matchCmd.Flags().String("preset", "duplicate", "Matching preset")
	matchCmd.Flags().Float64("threshold", -1, "Override the preset score threshold")
	matchCmd.Flags().Int("top-k", 0, "Override the preset match limit per target")
	matchCmd.Flags().Int("concurrency", 0, "Scoring workers (default: number of CPUs)")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
	_ = matchCmd.MarkFlagRequired("dir")
}

// matchOutput is the JSON output structure of the match command.
type matchOutput struct {
	State   string                     `json:"state"`
	Session string                     `json:"session"`
	Groups  map[store.ID]matcher.Group `json:"groups"`
	Errors  matcher.ErrorSummary       `json:"errors"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	preset := mustGetString(cmd, "preset")
	threshold := mustGetFloat64(cmd, "threshold")
	topK := mustGetInt(cmd, "top-k")
	concurrency := mustGetInt(cmd, "concurrency")
	jsonOutput := mustGetBool(cmd, "json")

	appCfg := config.Load()
	matchCfg, err := appCfg.Matching.Preset(preset)
	if err != nil {
		return err
	}
	if threshold >= 0 {
		matchCfg.Threshold = threshold
	}
	if topK > 0 {
		matchCfg.TopK = topK
	}
	matchCfg.Concurrency = concurrency

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	assets, err := store.NewFSStore(dir)
	if err != nil {
		return err
	}

	pool, err := assets.List(ctx, store.Filter{})
	if err != nil {
		return err
	}
	if len(pool) == 0 {
		return fmt.Errorf("no images found in %s", dir)
	}

	targets := make([]store.ID, 0, len(args))
	for _, arg := range args {
		targets = append(targets, store.ID(arg))
	}
	if len(targets) == 0 {
		targets = pool
	}

	provider, err := newEmbeddingProvider(ctx, appCfg)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = newMatchProgressBar(len(targets))
		matchCfg.OnProgress = func(p matcher.ProgressInfo) {
			_ = bar.Set(p.Current)
		}
	}

	descriptors := cache.New()
	if seeded := seedFromDatabase(ctx, appCfg, descriptors); seeded > 0 && !jsonOutput {
		fmt.Printf("Loaded %d stored descriptors\n", seeded)
	}
	engine := matcher.New(assets, descriptors, provider)

	result, err := engine.FindMatches(ctx, targets, pool, matchCfg)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Interrupted, showing partial results")
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(matchOutput{
			State:   result.State.String(),
			Session: descriptors.Session(),
			Groups:  result.Groups,
			Errors:  result.Errors,
		})
	}

	printMatchResult(result)
	return nil
}

func newMatchProgressBar(count int) *progressbar.ProgressBar {
	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription("Matching"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func printMatchResult(result *matcher.Result) {
	targets := make([]store.ID, 0, len(result.Groups))
	for id := range result.Groups {
		targets = append(targets, id)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	matched := 0
	for _, id := range targets {
		group := result.Groups[id]
		if len(group.Matches) == 0 {
			continue
		}
		matched++
		fmt.Fprintf(w, "%s\n", group.Source)
		for _, m := range group.Matches {
			fmt.Fprintf(w, "  %s\t%.4f\t%s\n", m.ID, m.Score, m.Reason)
		}
	}
	w.Flush()

	fmt.Printf("\n%d of %d photos have matches (%s)\n", matched, len(result.Groups), result.State)

	if !result.Errors.Empty() {
		fmt.Printf("Failures: %d not found, %d extraction, %d embedding, %d targets skipped\n",
			len(result.Errors.NotFound),
			len(result.Errors.ExtractionFailed),
			len(result.Errors.EmbeddingFailed),
			len(result.Errors.FailedTargets))
	}
}
