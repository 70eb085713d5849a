package recommender

import (
	"math"
	"sort"

	"github.com/viterin/vek/vek32"
)

// Candidate is a transient scored book id produced by one ranking source.
type Candidate struct {
	BookID int64   `json:"book_id"`
	Score  float64 `json:"score"`
}

// RecommendByVector ranks every embedded book by cosine similarity to the
// query vector and returns the k best, descending, ties kept in row order.
// Without loaded embeddings the result is empty, not an error; a query of
// the wrong dimension is an error surfaced to the caller.
func RecommendByVector(set *ArtifactSet, query []float32, k int) ([]Candidate, error) {
	if !set.HasContent() || k <= 0 {
		return nil, nil
	}
	if len(query) != set.Embeddings.Dim() {
		return nil, ErrDimensionMismatch
	}

	scores := similarityScores(set.Embeddings, query)
	return topKCandidates(scores, set.Books, k), nil
}

// RecommendSimilar ranks books by similarity to the given book's embedding.
// The queried book's own score is forced below every valid cosine value, so
// it can never appear in its own results even under duplicate embeddings.
// An unknown id yields an empty result.
func RecommendSimilar(set *ArtifactSet, bookID int64, k int) []Candidate {
	if !set.HasContent() || k <= 0 {
		return nil
	}

	row, ok := set.Books.Position(bookID)
	if !ok {
		return nil
	}

	scores := similarityScores(set.Embeddings, set.Embeddings.Row(row))
	scores[row] = math.Inf(-1)
	return topKCandidates(scores, set.Books, k)
}

// similarityScores computes cosine similarity of query against every row.
func similarityScores(m *EmbeddingMatrix, query []float32) []float64 {
	queryNorm := math.Sqrt(float64(vek32.Dot(query, query)))

	scores := make([]float64, m.Rows())
	for i := range scores {
		scores[i] = cosineWithNorm(m.Row(i), query, queryNorm)
	}
	return scores
}

// cosineWithNorm computes dot(a,b)/(|a|*|b|) given |b| precomputed.
// A zero-norm operand makes the ratio undefined; that is similarity 0,
// never NaN.
func cosineWithNorm(a, b []float32, bNorm float64) float64 {
	aNorm := math.Sqrt(float64(vek32.Dot(a, a)))
	denom := aNorm * bNorm
	if denom == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b)) / denom
}

// topKCandidates selects the k highest scores, descending, with ties broken
// by original row order, and maps rows back to book ids. Rows carrying the
// self-exclusion sentinel never make the cut.
func topKCandidates(scores []float64, index *IDIndex, k int) []Candidate {
	rows := make([]int, len(scores))
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return scores[rows[i]] > scores[rows[j]]
	})

	results := make([]Candidate, 0, k)
	for _, row := range rows {
		if len(results) == k {
			break
		}
		if math.IsInf(scores[row], -1) {
			break
		}
		results = append(results, Candidate{
			BookID: index.IDAt(row),
			Score:  scores[row],
		})
	}
	return results
}
