// This file implements the rebuild command for regenerating recommendation
// artifacts from the catalog.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyper-light/bookmind/core/pipeline"
)

// =============================================================================
// Rebuild Command Flags
// =============================================================================

var (
	rebuildBatchSize int
	rebuildJSON      bool
)

// =============================================================================
// Rebuild Command
// =============================================================================

// rebuildCmd regenerates all recommendation artifacts.
var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild recommendation artifacts from the catalog",
	Long: `Rebuild recommendation artifacts from the catalog.

This operation will:
1. Pull all books, users and ratings from the catalog database
2. Embed every book's title, author and description
3. Snapshot the user-item rating matrix
4. Install the new artifact generation atomically

A failed rebuild leaves the previously installed artifacts untouched.
Running engines pick up the new generation automatically when artifact
watching is enabled.

Examples:
  bookmind rebuild
  bookmind rebuild --batch-size 64
  bookmind rebuild --json`,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)

	rebuildCmd.Flags().IntVarP(&rebuildBatchSize, "batch-size", "b", 0, "Embedding batch size (0 uses config)")
	rebuildCmd.Flags().BoolVar(&rebuildJSON, "json", false, "Output as JSON")
}

// rebuildOutput is the JSON output for rebuild.
type rebuildOutput struct {
	RunID    string        `json:"run_id"`
	Books    int           `json:"books"`
	Users    int           `json:"users"`
	Ratings  int           `json:"ratings"`
	Duration time.Duration `json:"duration"`
}

func runRebuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Rebuild.Timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(cmd.OutOrStderr(), "\nInterrupted. Cleaning up...")
		cancel()
	}()

	store, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	if closer, ok := emb.(io.Closer); ok {
		defer closer.Close()
	}

	batchSize := cfg.Embedder.BatchSize
	if rebuildBatchSize > 0 {
		batchSize = rebuildBatchSize
	}

	p := pipeline.New(store, emb, pipeline.Config{
		ArtifactDir: cfg.Artifacts.Dir,
		BatchSize:   batchSize,
		Model:       cfg.Embedder.Model,
		Logger:      newLogger(),
	})

	start := time.Now()
	manifest, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	result := &rebuildOutput{
		RunID:    manifest.RunID,
		Books:    manifest.Books,
		Users:    manifest.Users,
		Ratings:  manifest.Ratings,
		Duration: time.Since(start),
	}

	if rebuildJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s%sRebuild Complete%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(w, "%sRun:%s      %s\n", colorGray, colorReset, result.RunID)
	fmt.Fprintf(w, "%sBooks:%s    %s%d%s\n", colorGray, colorReset, colorGreen, result.Books, colorReset)
	fmt.Fprintf(w, "%sUsers:%s    %d\n", colorGray, colorReset, result.Users)
	fmt.Fprintf(w, "%sRatings:%s  %d\n", colorGray, colorReset, result.Ratings)
	fmt.Fprintf(w, "%sDuration:%s %v\n", colorGray, colorReset, result.Duration.Round(time.Millisecond))
	return nil
}
