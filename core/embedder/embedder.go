// Package embedder turns book text into fixed-length vectors. The engine
// treats every implementation as a black box; only the dimension matters.
package embedder

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
)

// Embedder is the interface for generating text embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config selects and parameterizes an embedding backend.
type Config struct {
	Provider  string
	Model     string
	Dimension int
	BatchSize int
	APIKey    string
	CacheDir  string
}

// New constructs the embedder named by cfg.Provider.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocalEmbedder(LocalConfig{
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			CacheDir:  cfg.CacheDir,
		})
	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			APIKey:    cfg.APIKey,
		})
	case "mock":
		return NewMockEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", cfg.Provider)
	}
}

// =============================================================================
// Mock Embedder
// =============================================================================

// MockEmbedder produces deterministic, normalized vectors from a text hash.
// Used in tests and offline development.
type MockEmbedder struct {
	dimension int
}

// NewMockEmbedder creates a mock embedder of the given dimension.
func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &MockEmbedder{dimension: dimension}
}

// Embed generates a deterministic embedding based on the text hash.
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	hash := sha256.Sum256([]byte(text))
	embedding := make([]float32, m.dimension)

	for i := 0; i < m.dimension; i++ {
		embedding[i] = float32(hash[i%len(hash)]) / 255.0
	}

	// Normalize
	var norm float64
	for _, v := range embedding {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range embedding {
			embedding[i] = float32(float64(embedding[i]) / norm)
		}
	}

	return embedding, nil
}

// EmbedBatch embeds multiple texts.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = emb
	}
	return results, nil
}

// Dimension returns the embedding dimension.
func (m *MockEmbedder) Dimension() int {
	return m.dimension
}
