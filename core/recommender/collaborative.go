package recommender

import "sort"

// RecommendForUser scores every book the user has not rated by the mean of
// the nonzero ratings other users gave it, and returns the k best,
// descending, ties kept in column order. A book nobody rated scores 0 but
// still participates, so low-signal items can pad out short result sets.
//
// This is deliberately a popularity proxy restricted to the user's unrated
// set, not a neighborhood model; the scoring contract requires this exact
// behavior. A missing rating matrix or unknown user yields an empty result.
func RecommendForUser(set *ArtifactSet, userID int64, k int) []Candidate {
	if !set.HasCollaborative() || k <= 0 {
		return nil
	}

	userRow, ok := set.Ratings.Users.Position(userID)
	if !ok {
		return nil
	}

	matrix := set.Ratings.Matrix
	users, items := matrix.Dims()

	// Columns the user has at 0, scored by mean rating among raters.
	cols := make([]int, 0, items)
	scores := make([]float64, 0, items)
	for j := 0; j < items; j++ {
		if matrix.At(userRow, j) != 0 {
			continue
		}

		var sum float64
		var raters int
		for i := 0; i < users; i++ {
			if v := matrix.At(i, j); v > 0 {
				sum += v
				raters++
			}
		}

		score := 0.0
		if raters > 0 {
			score = sum / float64(raters)
		}
		cols = append(cols, j)
		scores = append(scores, score)
	}

	order := make([]int, len(cols))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k > len(order) {
		k = len(order)
	}

	results := make([]Candidate, 0, k)
	for _, i := range order[:k] {
		results = append(results, Candidate{
			BookID: set.Ratings.Items.IDAt(cols[i]),
			Score:  scores[i],
		})
	}
	return results
}
