// Package pipeline rebuilds the recommendation artifacts from the live
// catalog: embeddings for every book, then the user-item rating matrix.
// Everything is staged off to the side and installed atomically, so a
// failed rebuild leaves the previously installed artifacts serving.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/hyper-light/bookmind/core/catalog"
	"github.com/hyper-light/bookmind/core/embedder"
	"github.com/hyper-light/bookmind/core/recommender"
)

// ErrEmptyCatalog aborts a rebuild when there are no books to embed.
var ErrEmptyCatalog = errors.New("catalog has no books")

// Pipeline orchestrates one full offline rebuild.
type Pipeline struct {
	catalog   catalog.Reader
	embedder  embedder.Embedder
	dir       string
	batchSize int
	model     string
	logger    *slog.Logger
}

// Config configures a rebuild pipeline.
type Config struct {
	// ArtifactDir is where finished artifacts are installed.
	ArtifactDir string

	// BatchSize for embedding requests. Defaults to 32.
	BatchSize int

	// Model name recorded in the manifest.
	Model string

	Logger *slog.Logger
}

// New creates a pipeline over the given catalog and embedder.
func New(cat catalog.Reader, emb embedder.Embedder, cfg Config) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		catalog:   cat,
		embedder:  emb,
		dir:       cfg.ArtifactDir,
		batchSize: cfg.BatchSize,
		model:     cfg.Model,
		logger:    cfg.Logger,
	}
}

// Run pulls the catalog, embeds every book, snapshots the rating matrix
// and installs the staged artifacts, returning the manifest of the
// generation it installed. Any failure before install leaves the artifact
// directory untouched.
func (p *Pipeline) Run(ctx context.Context) (*recommender.Manifest, error) {
	runID := uuid.NewString()
	start := time.Now()
	p.logger.Info("rebuild started", "run_id", runID)

	books, err := p.catalog.GetAllBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("pull catalog: %w", err)
	}
	if len(books) == 0 {
		return nil, ErrEmptyCatalog
	}

	embeddings, bookIndex, err := p.buildEmbeddings(ctx, books)
	if err != nil {
		return nil, fmt.Errorf("build embeddings: %w", err)
	}

	ratings, ratingCount, err := p.buildRatings(ctx, books)
	if err != nil {
		return nil, fmt.Errorf("build rating matrix: %w", err)
	}

	manifest := &recommender.Manifest{
		RunID:     runID,
		BuiltAt:   time.Now().UTC(),
		Books:     len(books),
		Ratings:   ratingCount,
		Dimension: embeddings.Dim(),
		Model:     p.model,
	}
	if ratings != nil {
		manifest.Users = ratings.Users.Len()
	}

	if err := p.install(runID, embeddings, bookIndex, ratings, manifest); err != nil {
		return nil, err
	}

	p.logger.Info("rebuild finished",
		"run_id", runID,
		"books", manifest.Books,
		"users", manifest.Users,
		"ratings", manifest.Ratings,
		"elapsed", time.Since(start),
	)
	return manifest, nil
}

// buildEmbeddings embeds every book's textual representation in batches.
func (p *Pipeline) buildEmbeddings(ctx context.Context, books []*catalog.Book) (*recommender.EmbeddingMatrix, *recommender.IDIndex, error) {
	texts := make([]string, len(books))
	ids := make([]int64, len(books))
	for i, b := range books {
		texts[i] = b.EmbeddingText()
		ids[i] = b.ID
	}

	matrix := recommender.NewEmbeddingMatrix(p.embedder.Dimension())
	for offset := 0; offset < len(texts); offset += p.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		end := offset + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := p.embedder.EmbedBatch(ctx, texts[offset:end])
		if err != nil {
			return nil, nil, fmt.Errorf("embed batch at %d: %w", offset, err)
		}
		if len(vectors) != end-offset {
			return nil, nil, fmt.Errorf("embed batch at %d: got %d vectors for %d texts", offset, len(vectors), end-offset)
		}
		for _, vec := range vectors {
			if err := matrix.Append(vec); err != nil {
				return nil, nil, err
			}
		}

		p.logger.Info("embedding progress", "done", end, "total", len(texts))
	}

	index, err := recommender.NewIDIndex(ids)
	if err != nil {
		return nil, nil, err
	}
	return matrix, index, nil
}

// buildRatings snapshots users and ratings into a dense user-item matrix.
// With no users there is no matrix to build; collaborative ranking simply
// stays on its previous generation.
func (p *Pipeline) buildRatings(ctx context.Context, books []*catalog.Book) (*recommender.RatingBundle, int, error) {
	users, err := p.catalog.GetAllUsers(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("pull users: %w", err)
	}
	if len(users) == 0 {
		p.logger.Info("no users; skipping rating matrix")
		return nil, 0, nil
	}

	userIDs := make([]int64, len(users))
	for i, u := range users {
		userIDs[i] = u.ID
	}
	userIndex, err := recommender.NewIDIndex(userIDs)
	if err != nil {
		return nil, 0, err
	}

	itemIDs := make([]int64, len(books))
	for i, b := range books {
		itemIDs[i] = b.ID
	}
	itemIndex, err := recommender.NewIDIndex(itemIDs)
	if err != nil {
		return nil, 0, err
	}

	ratings, err := p.catalog.GetAllRatings(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("pull ratings: %w", err)
	}

	matrix := mat.NewDense(len(users), len(books), nil)
	applied := 0
	for _, r := range ratings {
		row, okUser := userIndex.Position(r.UserID)
		col, okItem := itemIndex.Position(r.BookID)
		if !okUser || !okItem {
			continue
		}
		matrix.Set(row, col, r.Value)
		applied++
	}

	return &recommender.RatingBundle{
		Matrix: matrix,
		Users:  userIndex,
		Items:  itemIndex,
	}, applied, nil
}

// install stages all artifacts in a scratch directory, then renames each
// into place, manifest last. A reader that sees the new manifest therefore
// sees fully written blobs; a failure mid-stage removes the scratch dir and
// leaves the installed generation alone.
func (p *Pipeline) install(runID string, embeddings *recommender.EmbeddingMatrix, bookIndex *recommender.IDIndex, ratings *recommender.RatingBundle, manifest *recommender.Manifest) error {
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	staging, err := os.MkdirTemp(p.dir, ".staging-"+runID+"-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := recommender.SaveEmbeddings(staging, embeddings, bookIndex); err != nil {
		return err
	}
	files := []string{recommender.EmbeddingsFile, recommender.BookIndexFile}

	if ratings != nil {
		if err := recommender.SaveRatings(staging, ratings); err != nil {
			return err
		}
		files = append(files, recommender.RatingsFile)
	}

	if err := recommender.SaveManifest(staging, manifest); err != nil {
		return err
	}
	files = append(files, recommender.ManifestFile)

	for _, name := range files {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(p.dir, name)); err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
	}
	return nil
}
