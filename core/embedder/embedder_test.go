package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Factory Tests
// =============================================================================

func TestNew_SelectsProvider(t *testing.T) {
	emb, err := New(Config{Provider: "mock", Dimension: 16})

	require.NoError(t, err, "New")
	assert.IsType(t, &MockEmbedder{}, emb, "mock provider selected")
	assert.Equal(t, 16, emb.Dimension(), "dimension honored")
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "carrier-pigeon"})

	assert.Error(t, err, "unknown provider rejected")
}

// =============================================================================
// Mock Embedder Tests
// =============================================================================

func TestMockEmbedder_Deterministic(t *testing.T) {
	emb := NewMockEmbedder(32)
	ctx := context.Background()

	first, err := emb.Embed(ctx, "Dune by Frank Herbert")
	require.NoError(t, err, "Embed")
	second, err := emb.Embed(ctx, "Dune by Frank Herbert")
	require.NoError(t, err, "Embed again")

	assert.Equal(t, first, second, "same text, same vector")

	other, err := emb.Embed(ctx, "Hyperion by Dan Simmons")
	require.NoError(t, err, "Embed other")
	assert.NotEqual(t, first, other, "different text, different vector")
}

func TestMockEmbedder_Normalized(t *testing.T) {
	emb := NewMockEmbedder(64)

	vec, err := emb.Embed(context.Background(), "some text")
	require.NoError(t, err, "Embed")
	require.Len(t, vec, 64, "dimension respected")

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5, "unit norm")
}

func TestMockEmbedder_EmbedBatch(t *testing.T) {
	emb := NewMockEmbedder(16)
	ctx := context.Background()

	texts := []string{"one", "two", "three"}
	vectors, err := emb.EmbedBatch(ctx, texts)

	require.NoError(t, err, "EmbedBatch")
	require.Len(t, vectors, len(texts), "one vector per text")

	single, err := emb.Embed(ctx, "two")
	require.NoError(t, err, "Embed")
	assert.Equal(t, single, vectors[1], "batch matches single embedding")
}

func TestMockEmbedder_DefaultDimension(t *testing.T) {
	emb := NewMockEmbedder(0)

	assert.Equal(t, 384, emb.Dimension(), "non-positive dimension falls back to the model default")
}
