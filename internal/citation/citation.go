// Package citation derives citation counts from decision full texts.
package citation

import (
	"strings"

	"github.com/JakeFAU/upc-citation-tracker/internal/decision"
)

// Count returns one candidate per decision carrying its recomputed citation
// count: the number of other decisions whose full text mentions its
// reference, ignoring case. Decisions without a reference count zero.
func Count(snap *decision.Snapshot) []decision.Candidate {
	all := snap.Decisions()
	texts := make([]string, len(all))
	for i, d := range all {
		texts[i] = strings.ToLower(d.FullText)
	}

	out := make([]decision.Candidate, 0, len(all))
	for i, d := range all {
		n := 0
		if ref := strings.ToLower(strings.TrimSpace(d.Reference)); ref != "" {
			for j, text := range texts {
				if j != i && strings.Contains(text, ref) {
					n++
				}
			}
		}
		count := n
		out = append(out, decision.Candidate{ID: d.ID, Citations: &count})
	}
	return out
}
