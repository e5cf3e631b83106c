// Package ranking orders decisions by citation count.
package ranking

import (
	"errors"
	"sort"

	"github.com/JakeFAU/upc-citation-tracker/internal/decision"
)

// ErrInvalidLimit is returned when the requested number of entries is not positive.
var ErrInvalidLimit = errors.New("ranking: n must be a positive integer")

// Entry is one ranked decision. Citations is captured at ranking time.
type Entry struct {
	Rank      int
	Decision  decision.Decision
	Citations int
}

// Rank returns up to n complete decisions ordered by citations descending,
// then identifier ascending. Incomplete decisions are skipped.
func Rank(snap *decision.Snapshot, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, ErrInvalidLimit
	}
	eligible := make([]decision.Decision, 0, snap.Len())
	for _, d := range snap.Decisions() {
		if d.Complete() {
			eligible = append(eligible, d)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Citations != eligible[j].Citations {
			return eligible[i].Citations > eligible[j].Citations
		}
		return eligible[i].ID < eligible[j].ID
	})
	if len(eligible) > n {
		eligible = eligible[:n]
	}
	entries := make([]Entry, len(eligible))
	for i, d := range eligible {
		entries[i] = Entry{Rank: i + 1, Decision: d, Citations: d.Citations}
	}
	return entries, nil
}
