// Package cmd provides CLI commands for the BookMind application.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyper-light/bookmind/core/catalog"
	"github.com/hyper-light/bookmind/core/config"
	"github.com/hyper-light/bookmind/core/embedder"
)

// =============================================================================
// Output Colors
// =============================================================================

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// =============================================================================
// Root Command
// =============================================================================

var configPath string

var rootCmd = &cobra.Command{
	Use:   "bookmind",
	Short: "BookMind - A hybrid book recommendation engine",
	Long: `BookMind is a hybrid book recommendation engine that blends semantic
embedding similarity with collaborative filtering over user ratings.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "bookmind.yaml", "Path to config file")
}

// =============================================================================
// Shared Wiring
// =============================================================================

// loadConfig reads the config file named by --config; a missing file falls
// back to defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	return cfg, nil
}

// newLogger builds the application logger writing to stderr so command
// output on stdout stays parseable.
func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// openCatalog opens the catalog database from config.
func openCatalog(cfg *config.Config) (*catalog.Store, error) {
	store, err := catalog.Open(cfg.Catalog.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", cfg.Catalog.DBPath, err)
	}
	return store, nil
}

// newEmbedder builds the configured embedding backend.
func newEmbedder(cfg *config.Config) (embedder.Embedder, error) {
	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedder.Provider,
		Model:     cfg.Embedder.Model,
		Dimension: cfg.Embedder.Dimension,
		BatchSize: cfg.Embedder.BatchSize,
		APIKey:    cfg.Embedder.APIKey,
		CacheDir:  cfg.Embedder.CacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return emb, nil
}
