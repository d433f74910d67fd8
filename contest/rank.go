package contest

import (
	"sort"
)

// RankedStatus pairs a status document with its competition rank
type RankedStatus struct {
	Rank   int
	Status *StatusDoc
}

// Rank sorts status documents by the rule order and assigns dense
// competition ranks: tied entries share a rank and the next distinct entry
// resumes at its 1-based position.
func Rank(rule Rule, docs []*StatusDoc) []RankedStatus {
	sorted := make([]*StatusDoc, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool { return rule.Less(sorted[i], sorted[j]) })

	ranked := make([]RankedStatus, len(sorted))
	rank := 1
	for i, d := range sorted {
		if i > 0 && !rule.Tie(sorted[i-1], d) {
			rank = i + 1
		}
		ranked[i] = RankedStatus{Rank: rank, Status: d}
	}
	return ranked
}
