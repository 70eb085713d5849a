package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyper-light/bookmind/core/catalog"
	"github.com/hyper-light/bookmind/core/embedder"
	"github.com/hyper-light/bookmind/core/recommender"
)

// =============================================================================
// Test Fixtures
// =============================================================================

// fakeCatalog is an in-memory catalog.Reader for pipeline tests.
type fakeCatalog struct {
	books   []*catalog.Book
	users   []*catalog.User
	ratings []*catalog.Rating
}

func (f *fakeCatalog) GetAllBooks(context.Context) ([]*catalog.Book, error)     { return f.books, nil }
func (f *fakeCatalog) GetAllUsers(context.Context) ([]*catalog.User, error)     { return f.users, nil }
func (f *fakeCatalog) GetAllRatings(context.Context) ([]*catalog.Rating, error) { return f.ratings, nil }
func (f *fakeCatalog) GetTopRated(context.Context, int) ([]*catalog.Book, error) {
	return nil, nil
}
func (f *fakeCatalog) GetBookByID(_ context.Context, id int64) (*catalog.Book, error) {
	for _, b := range f.books {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, catalog.ErrNotFound
}

// failingEmbedder aborts every batch.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model unavailable")
}
func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model unavailable")
}
func (failingEmbedder) Dimension() int { return 8 }

func testCatalog() *fakeCatalog {
	return &fakeCatalog{
		books: []*catalog.Book{
			{ID: 1, Title: "Dune", Author: "Frank Herbert", Description: "Desert planet epic"},
			{ID: 2, Title: "Hyperion", Author: "Dan Simmons"},
			{ID: 3, Title: "Foundation", Author: "Isaac Asimov"},
		},
		users: []*catalog.User{
			{ID: 100, Username: "alice"},
			{ID: 200, Username: "bob"},
		},
		ratings: []*catalog.Rating{
			{UserID: 100, BookID: 1, Value: 5},
			{UserID: 200, BookID: 2, Value: 4},
			{UserID: 999, BookID: 1, Value: 3}, // unknown user, dropped
			{UserID: 100, BookID: 777, Value: 2}, // unknown book, dropped
		},
	}
}

func newTestPipeline(cat catalog.Reader, emb embedder.Embedder, dir string) *Pipeline {
	return New(cat, emb, Config{
		ArtifactDir: dir,
		BatchSize:   2,
		Logger:      slog.New(slog.DiscardHandler),
	})
}

// =============================================================================
// Pipeline Tests
// =============================================================================

func TestPipeline_Run_ProducesLoadableArtifacts(t *testing.T) {
	dir := t.TempDir()
	p := newTestPipeline(testCatalog(), embedder.NewMockEmbedder(8), dir)

	manifest, err := p.Run(context.Background())

	require.NoError(t, err, "Run")
	assert.NotEmpty(t, manifest.RunID, "manifest carries a run id")
	assert.Equal(t, 3, manifest.Books, "all books embedded")
	assert.Equal(t, 2, manifest.Users, "all users indexed")
	assert.Equal(t, 2, manifest.Ratings, "unknown-id ratings dropped")
	assert.Equal(t, 8, manifest.Dimension, "embedder dimension recorded")

	set := recommender.LoadArtifactSet(dir, slog.New(slog.DiscardHandler))
	require.True(t, set.HasContent(), "embeddings installed")
	require.True(t, set.HasCollaborative(), "rating matrix installed")
	assert.Equal(t, manifest.RunID, set.RunID(), "manifest installed last")
	assert.Equal(t, []int64{1, 2, 3}, set.Books.IDs(), "book index follows catalog order")
	assert.Equal(t, 5.0, set.Ratings.Matrix.At(0, 0), "alice rated Dune 5")
	assert.Equal(t, 4.0, set.Ratings.Matrix.At(1, 1), "bob rated Hyperion 4")
	assert.Equal(t, 0.0, set.Ratings.Matrix.At(0, 2), "unrated cells are 0")
}

func TestPipeline_Run_EmbeddingsAreDeterministic(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()

	_, err := newTestPipeline(testCatalog(), embedder.NewMockEmbedder(8), dirA).Run(context.Background())
	require.NoError(t, err, "first run")
	_, err = newTestPipeline(testCatalog(), embedder.NewMockEmbedder(8), dirB).Run(context.Background())
	require.NoError(t, err, "second run")

	setA := recommender.LoadArtifactSet(dirA, slog.New(slog.DiscardHandler))
	setB := recommender.LoadArtifactSet(dirB, slog.New(slog.DiscardHandler))
	require.True(t, setA.HasContent() && setB.HasContent(), "both runs installed")
	for i := 0; i < setA.Embeddings.Rows(); i++ {
		assert.Equal(t, setA.Embeddings.Row(i), setB.Embeddings.Row(i), "same catalog, same vectors")
	}
}

func TestPipeline_Run_EmptyCatalog(t *testing.T) {
	p := newTestPipeline(&fakeCatalog{}, embedder.NewMockEmbedder(8), t.TempDir())

	_, err := p.Run(context.Background())

	assert.ErrorIs(t, err, ErrEmptyCatalog, "nothing to embed aborts the rebuild")
}

func TestPipeline_Run_NoUsersSkipsRatingMatrix(t *testing.T) {
	dir := t.TempDir()
	cat := testCatalog()
	cat.users = nil
	cat.ratings = nil

	manifest, err := newTestPipeline(cat, embedder.NewMockEmbedder(8), dir).Run(context.Background())

	require.NoError(t, err, "Run")
	assert.Zero(t, manifest.Users, "no users recorded")

	set := recommender.LoadArtifactSet(dir, slog.New(slog.DiscardHandler))
	assert.True(t, set.HasContent(), "content side still installed")
	assert.False(t, set.HasCollaborative(), "no rating matrix written")
}

func TestPipeline_Run_FailureLeavesPreviousGeneration(t *testing.T) {
	dir := t.TempDir()

	// Install a good generation first.
	manifest, err := newTestPipeline(testCatalog(), embedder.NewMockEmbedder(8), dir).Run(context.Background())
	require.NoError(t, err, "initial rebuild")

	// A failing embedder aborts the next rebuild before install.
	_, err = newTestPipeline(testCatalog(), failingEmbedder{}, dir).Run(context.Background())
	require.Error(t, err, "embedder failure aborts")

	set := recommender.LoadArtifactSet(dir, slog.New(slog.DiscardHandler))
	assert.Equal(t, manifest.RunID, set.RunID(), "previous generation untouched")
	assert.True(t, set.HasContent(), "previous embeddings still serve")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err, "read artifact dir")
	for _, e := range entries {
		assert.False(t, e.IsDir(), "staging directory cleaned up: %s", e.Name())
	}
}

func TestPipeline_Run_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	_, err := newTestPipeline(testCatalog(), embedder.NewMockEmbedder(8), dir).Run(ctx)

	require.ErrorIs(t, err, context.Canceled, "cancellation aborts the rebuild")
	set := recommender.LoadArtifactSet(dir, slog.New(slog.DiscardHandler))
	assert.False(t, set.HasContent(), "nothing installed")
}
