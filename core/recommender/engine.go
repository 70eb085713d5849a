package recommender

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hyper-light/bookmind/core/catalog"
)

// Recommendation is a hydrated, display-ready result row.
type Recommendation struct {
	ID     int64   `json:"id"`
	Title  string  `json:"title"`
	Author string  `json:"author"`
	Genres string  `json:"genres"`
	Score  float64 `json:"score"`
}

// HybridQuery selects the inputs for a hybrid recommendation. All three
// signal fields are optional; with none set the result is the catalog's
// top-rated list.
type HybridQuery struct {
	UserID      *int64
	BookID      *int64
	QueryVector []float32
	K           int
}

// EngineConfig configures the recommendation engine.
type EngineConfig struct {
	ContentWeight       float64
	CollaborativeWeight float64
	CacheSize           int
	Logger              *slog.Logger
}

// DefaultEngineConfig returns the standard weights and cache size.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ContentWeight:       ContentWeight,
		CollaborativeWeight: CollaborativeWeight,
		CacheSize:           1024,
	}
}

// Engine serves recommendations from an immutable artifact set. The set is
// held behind an atomic pointer: Install swaps a fully built generation in
// one step, and in-flight calls keep whatever snapshot they started with,
// so concurrent reads never observe a half-replaced generation.
type Engine struct {
	catalog   catalog.Reader
	config    EngineConfig
	logger    *slog.Logger
	artifacts atomic.Pointer[ArtifactSet]
	cache     *lru.Cache[string, []Recommendation]
}

// NewEngine creates an engine over the given catalog reader. No artifacts
// are loaded yet; every source degrades to empty until Install is called.
func NewEngine(cat catalog.Reader, cfg EngineConfig) (*Engine, error) {
	if cfg.ContentWeight == 0 && cfg.CollaborativeWeight == 0 {
		cfg.ContentWeight = ContentWeight
		cfg.CollaborativeWeight = CollaborativeWeight
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultEngineConfig().CacheSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cache, err := lru.New[string, []Recommendation](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}

	e := &Engine{
		catalog: cat,
		config:  cfg,
		logger:  cfg.Logger,
		cache:   cache,
	}
	e.artifacts.Store(&ArtifactSet{})
	return e, nil
}

// Install atomically swaps in a new artifact generation. The previous set
// stays valid for calls already holding it.
func (e *Engine) Install(set *ArtifactSet) {
	if set == nil {
		set = &ArtifactSet{}
	}
	e.artifacts.Store(set)
	e.cache.Purge()
	e.logger.Info("artifact set installed",
		"run_id", set.RunID(),
		"content", set.HasContent(),
		"collaborative", set.HasCollaborative(),
	)
}

// Artifacts returns the current artifact snapshot. Never nil.
func (e *Engine) Artifacts() *ArtifactSet {
	return e.artifacts.Load()
}

// RecommendByText ranks books against an already-embedded free-text query.
func (e *Engine) RecommendByText(ctx context.Context, queryVec []float32, k int) ([]Recommendation, error) {
	set := e.Artifacts()

	key := fmt.Sprintf("%s|text|%s|%d", set.RunID(), hashVector(queryVec), k)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	candidates, err := RecommendByVector(set, queryVec, k)
	if err != nil {
		return nil, err
	}

	results, err := e.hydrate(ctx, candidates)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, results)
	return results, nil
}

// RecommendSimilar ranks books similar to a reference book.
func (e *Engine) RecommendSimilar(ctx context.Context, bookID int64, k int) ([]Recommendation, error) {
	set := e.Artifacts()

	key := fmt.Sprintf("%s|similar|%d|%d", set.RunID(), bookID, k)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	results, err := e.hydrate(ctx, RecommendSimilar(set, bookID, k))
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, results)
	return results, nil
}

// RecommendHybrid blends content and collaborative signals. Each source is
// asked for 2k candidates so fusion ranks over a wider pool than the final
// cut; sources that are unavailable contribute an empty pool rather than
// an error, down to the catalog popularity fallback.
func (e *Engine) RecommendHybrid(ctx context.Context, q HybridQuery) ([]Recommendation, error) {
	if q.K <= 0 {
		return nil, nil
	}
	set := e.Artifacts()

	key := hybridCacheKey(set.RunID(), q)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	content, err := e.contentCandidates(ctx, set, q)
	if err != nil {
		return nil, err
	}

	var collab []Candidate
	if q.UserID != nil {
		collab = RecommendForUser(set, *q.UserID, 2*q.K)
	}

	fused := FuseCandidates(content, collab, q.K, e.config.ContentWeight, e.config.CollaborativeWeight)

	results, err := e.hydrate(ctx, fused)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, results)
	return results, nil
}

// contentCandidates picks the content source: similar-by-book, by-vector,
// or the catalog top-rated fallback.
func (e *Engine) contentCandidates(ctx context.Context, set *ArtifactSet, q HybridQuery) ([]Candidate, error) {
	pool := 2 * q.K

	switch {
	case q.BookID != nil:
		return RecommendSimilar(set, *q.BookID, pool), nil

	case q.QueryVector != nil:
		return RecommendByVector(set, q.QueryVector, pool)

	default:
		books, err := e.catalog.GetTopRated(ctx, pool)
		if err != nil {
			e.logger.Warn("popularity fallback unavailable", "error", err)
			return nil, nil
		}
		candidates := make([]Candidate, 0, len(books))
		for _, b := range books {
			candidates = append(candidates, Candidate{BookID: b.ID, Score: b.AvgRating})
		}
		return candidates, nil
	}
}

// hydrate resolves candidate ids into display rows. Ids that vanished from
// the catalog since the last rebuild are skipped.
func (e *Engine) hydrate(ctx context.Context, candidates []Candidate) ([]Recommendation, error) {
	results := make([]Recommendation, 0, len(candidates))
	for _, c := range candidates {
		book, err := e.catalog.GetBookByID(ctx, c.BookID)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hydrate book %d: %w", c.BookID, err)
		}
		results = append(results, Recommendation{
			ID:     book.ID,
			Title:  book.Title,
			Author: book.Author,
			Genres: book.Genres,
			Score:  c.Score,
		})
	}
	return results, nil
}

func hybridCacheKey(runID string, q HybridQuery) string {
	user := int64(-1)
	if q.UserID != nil {
		user = *q.UserID
	}
	book := int64(-1)
	if q.BookID != nil {
		book = *q.BookID
	}
	return fmt.Sprintf("%s|hybrid|%d|%d|%s|%d", runID, user, book, hashVector(q.QueryVector), q.K)
}

func hashVector(vec []float32) string {
	if len(vec) == 0 {
		return "-"
	}
	h := sha256.New()
	buf := make([]byte, 4)
	for _, v := range vec {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}
