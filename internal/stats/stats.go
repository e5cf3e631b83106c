// Package stats computes aggregate metrics over a decision Snapshot.
package stats

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/upc-citation-tracker/internal/decision"
	"github.com/JakeFAU/upc-citation-tracker/internal/ranking"
)

const (
	unknownLabel   = "Unknown"
	partySeparator = " v. "
	minPartyLength = 6
)

// Options bounds the list-shaped breakdowns.
type Options struct {
	Months     int
	TopCited   int
	TopParties int
}

// DefaultOptions mirrors the published statistics page.
func DefaultOptions() Options {
	return Options{Months: 12, TopCited: 20, TopParties: 10}
}

// Count is one labelled bucket.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Summary holds every aggregate derived from a Snapshot.
type Summary struct {
	Total          int
	WithReference  int
	Cited          int
	Incomplete     int
	TotalCitations int
	MinCitations   int
	MaxCitations   int
	MeanCitations  float64
	ByCourt        []Count
	ByYear         []Count
	ByMonth        []Count
	ByActionType   []Count
	TopParties     []Count
	TopCited       []ranking.Entry
}

// Summarize is a pure function of the Snapshot. An empty Snapshot yields
// zero counts and empty breakdowns.
func Summarize(snap *decision.Snapshot, opts Options) Summary {
	s := Summary{
		ByCourt:      []Count{},
		ByYear:       []Count{},
		ByMonth:      []Count{},
		ByActionType: []Count{},
		TopParties:   []Count{},
		TopCited:     []ranking.Entry{},
	}
	all := snap.Decisions()
	s.Total = len(all)
	if s.Total == 0 {
		return s
	}

	courts := map[string]int{}
	years := map[string]int{}
	months := map[string]int{}
	actions := map[string]int{}
	parties := map[string]int{}

	s.MinCitations = all[0].Citations
	for _, d := range all {
		if d.Reference != "" {
			s.WithReference++
		}
		if d.Citations > 0 {
			s.Cited++
		}
		if !d.Complete() {
			s.Incomplete++
		}
		s.TotalCitations += d.Citations
		if d.Citations < s.MinCitations {
			s.MinCitations = d.Citations
		}
		if d.Citations > s.MaxCitations {
			s.MaxCitations = d.Citations
		}

		courts[labelOr(d.Court)]++
		actions[labelOr(d.ActionType)]++
		years[d.Year()]++
		if m := d.Month(); m != "" {
			months[m]++
		}
		for _, p := range splitParties(d.Parties) {
			parties[p]++
		}
	}
	s.MeanCitations = float64(s.TotalCitations) / float64(s.Total)

	s.ByCourt = byCountDesc(courts, 0)
	s.ByActionType = byCountDesc(actions, 0)
	s.TopParties = byCountDesc(parties, opts.TopParties)
	s.ByYear = byKeyAsc(years)
	s.ByMonth = byKeyAsc(months)
	if opts.Months > 0 && len(s.ByMonth) > opts.Months {
		s.ByMonth = s.ByMonth[len(s.ByMonth)-opts.Months:]
	}
	if opts.TopCited > 0 {
		if top, err := ranking.Rank(snap, opts.TopCited); err == nil {
			s.TopCited = top
		}
	}
	return s
}

func labelOr(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return unknownLabel
	}
	return v
}

func splitParties(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, partySeparator) {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) >= minPartyLength {
			out = append(out, part)
		}
	}
	return out
}

// byCountDesc orders by count descending then key ascending; limit <= 0 keeps all.
func byCountDesc(m map[string]int, limit int) []Count {
	out := toCounts(m)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func byKeyAsc(m map[string]int) []Count {
	out := toCounts(m)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func toCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	return out
}
