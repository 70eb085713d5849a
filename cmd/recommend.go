// This file implements the recommend command for hybrid recommendations.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hyper-light/bookmind/core/recommender"
)

// =============================================================================
// Recommend Command Flags
// =============================================================================

var (
	recommendUser  int64
	recommendBook  int64
	recommendQuery string
	recommendK     int
	recommendJSON  bool
)

// =============================================================================
// Recommend Command
// =============================================================================

// recommendCmd produces hybrid recommendations.
var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Get hybrid book recommendations",
	Long: `Get hybrid book recommendations blending semantic similarity with
collaborative filtering over user ratings.

Signals are optional and composable:
  --user   adds collaborative scores from that user's rating history
  --book   anchors content similarity on a reference book
  --query  anchors content similarity on free text

With no signals the result is the catalog's top-rated books.

Examples:
  bookmind recommend --user 42
  bookmind recommend --user 42 --book 7 -k 5
  bookmind recommend --query "sweeping historical fiction"`,
	RunE: runRecommend,
}

func init() {
	rootCmd.AddCommand(recommendCmd)

	recommendCmd.Flags().Int64VarP(&recommendUser, "user", "u", 0, "User id for collaborative scores")
	recommendCmd.Flags().Int64VarP(&recommendBook, "book", "b", 0, "Reference book id for content scores")
	recommendCmd.Flags().StringVarP(&recommendQuery, "query", "q", "", "Free-text query for content scores")
	recommendCmd.Flags().IntVarP(&recommendK, "top", "k", 10, "Number of recommendations")
	recommendCmd.Flags().BoolVar(&recommendJSON, "json", false, "Output as JSON")
}

func runRecommend(cmd *cobra.Command, args []string) error {
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
		ContentWeight:       cfg.Fusion.ContentWeight,
		CollaborativeWeight: cfg.Fusion.CollaborativeWeight,
		CacheSize:           cfg.Cache.MaxQueries,
		Logger:              logger,
	})
	if err != nil {
		return err
	}
	engine.Install(recommender.LoadArtifactSet(cfg.Artifacts.Dir, logger))

	ctx := context.Background()

	query := recommender.HybridQuery{K: recommendK}
	if cmd.Flags().Changed("user") {
		query.UserID = &recommendUser
	}
	if cmd.Flags().Changed("book") {
		query.BookID = &recommendBook
	}
	if recommendQuery != "" {
		emb, err := newEmbedder(cfg)
		if err != nil {
			return err
		}
		vec, err := emb.Embed(ctx, recommendQuery)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		query.QueryVector = vec
	}

	results, err := engine.RecommendHybrid(ctx, query)
	if err != nil {
		return fmt.Errorf("recommend: %w", err)
	}

	if recommendJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	}
	printRecommendations(cmd.OutOrStdout(), "Recommendations", results)
	return nil
}

// printRecommendations renders a ranked result list.
func printRecommendations(w io.Writer, title string, results []recommender.Recommendation) {
	fmt.Fprintf(w, "%s%s%s%s\n", colorBold, colorCyan, title, colorReset)

	if len(results) == 0 {
		fmt.Fprintf(w, "%sNo results. Run 'bookmind rebuild' to build artifacts.%s\n", colorYellow, colorReset)
		return
	}

	for i, r := range results {
		fmt.Fprintf(w, "%s%2d.%s %s%s%s by %s %s(%.4f)%s\n",
			colorGray, i+1, colorReset,
			colorBold, r.Title, colorReset,
			r.Author,
			colorGray, r.Score, colorReset)
		if r.Genres != "" {
			fmt.Fprintf(w, "    %s%s%s\n", colorGray, r.Genres, colorReset)
		}
	}
}
