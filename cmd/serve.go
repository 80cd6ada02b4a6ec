package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-matcher/internal/cache"
	"github.com/kozaktomas/photo-matcher/internal/config"
	"github.com/kozaktomas/photo-matcher/internal/matcher"
	"github.com/kozaktomas/photo-matcher/internal/store"
	"github.com/kozaktomas/photo-matcher/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the matching web server",
	Long: `Start the Photo Matcher web server.
The server exposes matching over an HTTP API: synchronous matching,
async matching jobs with progress, presets and library statistics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("dir", "", "Directory with the photo library (required)")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	_ = serveCmd.MarkFlagRequired("dir")
}

func runServe(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	appCfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	assets, err := store.NewFSStore(dir)
	if err != nil {
		return err
	}

	ids, err := assets.List(ctx, store.Filter{})
	if err != nil {
		return err
	}
	fmt.Printf("Serving library %s with %d photos\n", dir, len(ids))

	provider, err := newEmbeddingProvider(ctx, appCfg)
	if err != nil {
		return err
	}
	if provider != nil {
		fmt.Printf("Embedding provider: %s\n", provider.Name())
	}

	descriptors := cache.New()
	if seeded := seedFromDatabase(ctx, appCfg, descriptors); seeded > 0 {
		fmt.Printf("Loaded %d stored descriptors\n", seeded)
	}
	engine := matcher.New(assets, descriptors, provider)
	server := web.NewServer(appCfg, engine, assets, descriptors, host, port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
	}
	return nil
}
