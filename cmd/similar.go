// This file implements the similar command for content-based lookups.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hyper-light/bookmind/core/recommender"
)

// =============================================================================
// Similar Command Flags
// =============================================================================

var (
	similarK    int
	similarJSON bool
)

// =============================================================================
// Similar Command
// =============================================================================

// similarCmd finds books similar to a reference book.
var similarCmd = &cobra.Command{
	Use:   "similar <book-id>",
	Short: "Find books similar to a reference book",
	Long: `Find books similar to a reference book by cosine similarity of their
embeddings. The reference book itself is never returned.

Examples:
  bookmind similar 7
  bookmind similar 7 -k 5 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(similarCmd)

	similarCmd.Flags().IntVarP(&similarK, "top", "k", 10, "Number of results")
	similarCmd.Flags().BoolVar(&similarJSON, "json", false, "Output as JSON")
}

func runSimilar(cmd *cobra.Command, args []string) error {
	bookID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid book id %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	logger := newLogger()
	engine, err := recommender.NewEngine(store, recommender.EngineConfig{
		CacheSize: cfg.Cache.MaxQueries,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	engine.Install(recommender.LoadArtifactSet(cfg.Artifacts.Dir, logger))

	results, err := engine.RecommendSimilar(context.Background(), bookID, similarK)
	if err != nil {
		return fmt.Errorf("similar: %w", err)
	}

	if similarJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	}
	printRecommendations(cmd.OutOrStdout(), fmt.Sprintf("Similar to book %d", bookID), results)
	return nil
}
