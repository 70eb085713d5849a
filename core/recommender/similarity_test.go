package recommender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// =============================================================================
// Test Helpers
// =============================================================================

// contentSet builds an artifact set with only the content side populated.
func contentSet(t *testing.T, ids []int64, vectors [][]float32) *ArtifactSet {
	t.Helper()

	require.Len(t, vectors, len(ids), "ids and vectors must pair up")

	matrix := NewEmbeddingMatrix(len(vectors[0]))
	for _, vec := range vectors {
		require.NoError(t, matrix.Append(vec), "Append")
	}

	index, err := NewIDIndex(ids)
	require.NoError(t, err, "NewIDIndex")

	return &ArtifactSet{Embeddings: matrix, Books: index}
}

// ratingSet builds an artifact set with only the collaborative side
// populated. Cells are row-major users x items.
func ratingSet(t *testing.T, userIDs, itemIDs []int64, cells []float64) *ArtifactSet {
	t.Helper()

	require.Len(t, cells, len(userIDs)*len(itemIDs), "cell count must match dims")

	users, err := NewIDIndex(userIDs)
	require.NoError(t, err, "user index")
	items, err := NewIDIndex(itemIDs)
	require.NoError(t, err, "item index")

	return &ArtifactSet{
		Ratings: &RatingBundle{
			Matrix: mat.NewDense(len(userIDs), len(itemIDs), cells),
			Users:  users,
			Items:  items,
		},
	}
}

func candidateIDs(candidates []Candidate) []int64 {
	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.BookID
	}
	return ids
}

// =============================================================================
// RecommendByVector Tests
// =============================================================================

func TestRecommendByVector_RanksDescending(t *testing.T) {
	set := contentSet(t,
		[]int64{10, 20, 30},
		[][]float32{{1, 0}, {0.9, 0.1}, {-1, 0}},
	)

	results, err := RecommendByVector(set, []float32{1, 0}, 2)

	require.NoError(t, err, "RecommendByVector")
	require.Len(t, results, 2, "should return k results")
	assert.Equal(t, []int64{10, 20}, candidateIDs(results), "order should follow similarity")
	assert.InDelta(t, 1.0, results[0].Score, 1e-9, "identical vector scores 1")
	assert.InDelta(t, 0.99388, results[1].Score, 1e-4, "near-parallel vector score")
}

func TestRecommendByVector_Deterministic(t *testing.T) {
	set := contentSet(t,
		[]int64{1, 2, 3, 4},
		[][]float32{{0.5, 0.5}, {0.5, 0.5}, {1, 0}, {0, 1}},
	)

	first, err := RecommendByVector(set, []float32{0.7, 0.7}, 4)
	require.NoError(t, err, "first call")
	second, err := RecommendByVector(set, []float32{0.7, 0.7}, 4)
	require.NoError(t, err, "second call")

	assert.Equal(t, first, second, "identical queries should give identical rankings")
}

func TestRecommendByVector_TiesKeepRowOrder(t *testing.T) {
	// Three identical vectors all tie at similarity 1.
	set := contentSet(t,
		[]int64{7, 8, 9},
		[][]float32{{1, 1}, {1, 1}, {1, 1}},
	)

	results, err := RecommendByVector(set, []float32{1, 1}, 3)

	require.NoError(t, err, "RecommendByVector")
	assert.Equal(t, []int64{7, 8, 9}, candidateIDs(results), "ties should keep row order")
}

func TestRecommendByVector_DimensionMismatch(t *testing.T) {
	set := contentSet(t, []int64{1}, [][]float32{{1, 0}})

	_, err := RecommendByVector(set, []float32{1, 0, 0}, 5)

	require.ErrorIs(t, err, ErrDimensionMismatch, "wrong query dimension should fail the call")
}

func TestRecommendByVector_NoEmbeddings(t *testing.T) {
	results, err := RecommendByVector(&ArtifactSet{}, []float32{1, 0}, 5)

	require.NoError(t, err, "missing artifacts are not an error")
	assert.Empty(t, results, "no embeddings means empty result")
}

func TestRecommendByVector_ZeroNormIsZeroNotNaN(t *testing.T) {
	set := contentSet(t,
		[]int64{1, 2},
		[][]float32{{0, 0}, {1, 0}},
	)

	results, err := RecommendByVector(set, []float32{0, 0}, 2)

	require.NoError(t, err, "RecommendByVector")
	require.Len(t, results, 2, "zero vectors still participate")
	for _, r := range results {
		assert.Equal(t, 0.0, r.Score, "undefined cosine must score 0, not NaN")
	}
}

func TestRecommendByVector_KLargerThanMatrix(t *testing.T) {
	set := contentSet(t, []int64{1, 2}, [][]float32{{1, 0}, {0, 1}})

	results, err := RecommendByVector(set, []float32{1, 0}, 10)

	require.NoError(t, err, "RecommendByVector")
	assert.Len(t, results, 2, "result is capped at the matrix size")
}

// =============================================================================
// RecommendSimilar Tests
// =============================================================================

func TestRecommendSimilar_ExcludesSelf(t *testing.T) {
	set := contentSet(t,
		[]int64{1, 2, 3},
		[][]float32{{1, 0}, {0.9, 0.1}, {0, 1}},
	)

	results := RecommendSimilar(set, 1, 3)

	require.NotEmpty(t, results, "should have neighbors")
	assert.NotContains(t, candidateIDs(results), int64(1), "queried book must never appear")
	assert.Equal(t, int64(2), results[0].BookID, "nearest neighbor first")
}

func TestRecommendSimilar_ExcludesSelfUnderDuplicates(t *testing.T) {
	// Book 2 is an exact duplicate of book 1; exclusion must be by
	// identity, not by score.
	set := contentSet(t,
		[]int64{1, 2, 3},
		[][]float32{{1, 0}, {1, 0}, {0, 1}},
	)

	results := RecommendSimilar(set, 1, 3)

	assert.NotContains(t, candidateIDs(results), int64(1), "self excluded even with duplicate embedding")
	assert.Contains(t, candidateIDs(results), int64(2), "the duplicate itself still ranks")
}

func TestRecommendSimilar_KLargerThanCatalog(t *testing.T) {
	set := contentSet(t,
		[]int64{1, 2},
		[][]float32{{1, 0}, {0, 1}},
	)

	results := RecommendSimilar(set, 1, 100)

	assert.Equal(t, []int64{2}, candidateIDs(results), "self never pads an oversized k")
}

func TestRecommendSimilar_UnknownID(t *testing.T) {
	set := contentSet(t, []int64{1}, [][]float32{{1, 0}})

	results := RecommendSimilar(set, 999, 5)

	assert.Empty(t, results, "unknown book id yields empty result")
}

func TestRecommendSimilar_NoEmbeddings(t *testing.T) {
	results := RecommendSimilar(&ArtifactSet{}, 1, 5)

	assert.Empty(t, results, "no embeddings means empty result")
}
