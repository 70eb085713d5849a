// This file implements the interactive recommendation loop. It keeps the
// engine resident, so it is also where the artifact watcher earns its keep:
// a rebuild in another process becomes visible mid-session.
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyper-light/bookmind/core/config"
	"github.com/hyper-light/bookmind/core/embedder"
	"github.com/hyper-light/bookmind/core/recommender"
)

// =============================================================================
// Interactive Command
// =============================================================================

var interactiveK int

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Interactive recommendation session",
	Long: `Launch an interactive recommendation session. The engine stays
resident and, when artifact watching is enabled, picks up new artifact
generations installed by 'bookmind rebuild' without a restart.

Session commands:
  user <id>        Recommendations for a user
  book <id>        Books similar to a book
  <free text>      Recommendations for a text query
  quit             Exit`,
	RunE: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)

	interactiveCmd.Flags().IntVarP(&interactiveK, "top", "k", 10, "Number of results per query")
}

func runInteractive(cmd *cobra.Command, args []string) error {
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

	if cfg.Artifacts.Watch {
		watcher, err := recommender.NewArtifactWatcher(cfg.Artifacts.Dir, engine, logger)
		if err != nil {
			logger.Warn("artifact watching disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	session := &interactiveSession{
		engine: engine,
		config: cfg,
		k:      interactiveK,
		in:     cmd.InOrStdin(),
		out:    cmd.OutOrStdout(),
	}
	return session.run(context.Background())
}

// =============================================================================
// Interactive Session
// =============================================================================

type interactiveSession struct {
	engine   *recommender.Engine
	config   *config.Config
	embedder embedder.Embedder
	k        int
	in       io.Reader
	out      io.Writer
}

func (s *interactiveSession) run(ctx context.Context) error {
	fmt.Fprintf(s.out, "%s%sBookMind%s interactive session. Type 'quit' to exit.\n\n", colorBold, colorCyan, colorReset)

	scanner := bufio.NewScanner(s.in)
	for {
		fmt.Fprintf(s.out, "%s>%s ", colorGreen, colorReset)
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}

		if err := s.handle(ctx, line); err != nil {
			fmt.Fprintf(s.out, "%s%v%s\n", colorRed, err, colorReset)
		}
		fmt.Fprintln(s.out)
	}
}

func (s *interactiveSession) handle(ctx context.Context, line string) error {
	field, rest, _ := strings.Cut(line, " ")

	switch field {
	case "user", "book":
		id, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
		if err != nil {
			return fmt.Errorf("usage: %s <id>", field)
		}

		query := recommender.HybridQuery{K: s.k}
		if field == "user" {
			query.UserID = &id
		} else {
			query.BookID = &id
		}
		results, err := s.engine.RecommendHybrid(ctx, query)
		if err != nil {
			return err
		}
		printRecommendations(s.out, "Results", results)
		return nil

	default:
		vec, err := s.embedQuery(ctx, line)
		if err != nil {
			return err
		}
		results, err := s.engine.RecommendByText(ctx, vec, s.k)
		if err != nil {
			return err
		}
		printRecommendations(s.out, "Results", results)
		return nil
	}
}

// embedQuery lazily builds the embedder on first text query so id-only
// sessions never pay for model setup.
func (s *interactiveSession) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		emb, err := newEmbedder(s.config)
		if err != nil {
			return nil, err
		}
		s.embedder = emb
	}
	return s.embedder.Embed(ctx, text)
}
