package search

import "sort"

// MatchMode names one retrieval strategy, in escalating recall order.
type MatchMode string

const (
	MatchExact   MatchMode = "exact"
	MatchILike   MatchMode = "ilike"
	MatchTrigram MatchMode = "trigram"
	MatchVector  MatchMode = "vector"
)

// waveOrder ranks specificity for tie-breaking: EXACT beats ILIKE beats
// TRIGRAM beats VECTOR.
var waveOrder = map[MatchMode]int{
	MatchExact:   0,
	MatchILike:   1,
	MatchTrigram: 2,
	MatchVector:  3,
}

// Row is one admissible database hit.
type Row struct {
	Table   string  `json:"table"`
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Candidate is a Row plus the retrieval signal that produced it. The same
// underlying row can surface as several candidates across waves; fusion
// merges them.
type Candidate struct {
	Row
	MatchMode     MatchMode
	Wave          int
	Rank          int
	VariantWeight float64
}

// RankedResult is the fused output for one distinct row.
type RankedResult struct {
	Row
	FinalScore float64   `json:"final_score"`
	BestMode   MatchMode `json:"best_mode"`
	Signals    int       `json:"signals"`
}

// rrfK dampens rank contributions; the conventional constant.
const rrfK = 60

// FuseCandidates merges multi-wave, multi-table candidates into one ranked
// list with reciprocal-rank fusion: each signal contributes
// weight * 1/(k + rank). Admissibility was decided before candidates got
// here; fusion only orders rows.
func FuseCandidates(candidates []Candidate) []RankedResult {
	type key struct{ table, id string }

	merged := make(map[key]*RankedResult)
	var order []key

	for _, c := range candidates {
		k := key{table: c.Table, id: c.ID}
		r, ok := merged[k]
		if !ok {
			r = &RankedResult{Row: c.Row, BestMode: c.MatchMode}
			merged[k] = r
			order = append(order, k)
		}

		weight := c.VariantWeight
		if weight <= 0 {
			weight = 1.0
		}
		r.FinalScore += weight / float64(rrfK+c.Rank+1)
		r.Signals++

		if waveOrder[c.MatchMode] < waveOrder[r.BestMode] {
			r.BestMode = c.MatchMode
			r.Row = c.Row
		}
	}

	results := make([]RankedResult, 0, len(merged))
	for _, k := range order {
		results = append(results, *merged[k])
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		if waveOrder[results[i].BestMode] != waveOrder[results[j].BestMode] {
			return waveOrder[results[i].BestMode] < waveOrder[results[j].BestMode]
		}
		return results[i].Label < results[j].Label
	})

	return results
}
