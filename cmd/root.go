package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photo-matcher",
	Short: "A CLI tool for finding duplicate and visually similar photos",
	Long: `Photo Matcher scans image libraries and finds duplicates and visually
similar photos. Matching combines cheap visual features (color histograms,
average color, aspect ratio, resolution) with optional semantic embeddings
from an embedding server or a vision model.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
