package recommender

import "sort"

// Fixed hybrid blend weights. Content and collaborative scores live on
// different scales (cosine ≈ [-1,1] vs mean rating [0,5]) and are fused
// WITHOUT rescaling; the collaborative signal can therefore dominate on
// scale alone. That asymmetry is part of the scoring contract and must not
// be corrected here.
const (
	ContentWeight       = 0.6
	CollaborativeWeight = 0.4
)

// fusedEntry accumulates both source scores for one book id.
type fusedEntry struct {
	bookID    int64
	content   float64
	collab    float64
	firstSeen int
}

// FuseCandidates merges a content-based and a collaborative candidate list
// into one ranking over the union of their book ids. Missing scores default
// to 0. Final score = wContent*content + wCollab*collab, sorted descending
// with ties broken by first-seen order (content list first), cut to k.
func FuseCandidates(content, collab []Candidate, k int, wContent, wCollab float64) []Candidate {
	if k <= 0 {
		return nil
	}

	entries := make(map[int64]*fusedEntry, len(content)+len(collab))
	order := 0

	for _, c := range content {
		e, ok := entries[c.BookID]
		if !ok {
			e = &fusedEntry{bookID: c.BookID, firstSeen: order}
			entries[c.BookID] = e
			order++
		}
		e.content = c.Score
	}
	for _, c := range collab {
		e, ok := entries[c.BookID]
		if !ok {
			e = &fusedEntry{bookID: c.BookID, firstSeen: order}
			entries[c.BookID] = e
			order++
		}
		e.collab = c.Score
	}

	merged := make([]*fusedEntry, 0, len(entries))
	for _, e := range entries {
		merged = append(merged, e)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		si := wContent*merged[i].content + wCollab*merged[i].collab
		sj := wContent*merged[j].content + wCollab*merged[j].collab
		if si != sj {
			return si > sj
		}
		return merged[i].firstSeen < merged[j].firstSeen
	})

	if k > len(merged) {
		k = len(merged)
	}

	results := make([]Candidate, 0, k)
	for _, e := range merged[:k] {
		results = append(results, Candidate{
			BookID: e.bookID,
			Score:  wContent*e.content + wCollab*e.collab,
		})
	}
	return results
}
