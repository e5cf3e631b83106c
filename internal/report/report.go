// Package report renders the published HTML pages and the JSON statistics
// document. Output depends only on its inputs, so equal inputs render
// byte-identical files.
package report

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/JakeFAU/upc-citation-tracker/internal/decision"
	"github.com/JakeFAU/upc-citation-tracker/internal/ranking"
	"github.com/JakeFAU/upc-citation-tracker/internal/stats"
)

// Label widths, in runes, before an ellipsis is appended.
const (
	CourtWidth   = 30
	ActionWidth  = 25
	PartiesWidth = 50
)

const ellipsis = "..."

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// Totals are the header counters of the top-N page.
type Totals struct {
	Decisions     int
	WithReference int
	Cited         int
}

// TopNPage is the input of RenderTopN. Limit is the configured N; zero
// falls back to the number of entries.
type TopNPage struct {
	GeneratedAt time.Time
	Totals      Totals
	Limit       int
	Entries     []ranking.Entry
}

// N is the size of the ranking the page announces.
func (p TopNPage) N() int {
	if p.Limit > 0 {
		return p.Limit
	}
	return len(p.Entries)
}

// Title is the document title of the top-N page.
func (p TopNPage) Title() string {
	return fmt.Sprintf("UPC Citation Tracker - Top %d", p.N())
}

// StatisticsPage is the input of RenderStatistics and RenderStatisticsJSON.
type StatisticsPage struct {
	GeneratedAt time.Time
	Summary     stats.Summary
}

// TotalsOf extracts the header counters from a summary.
func TotalsOf(s stats.Summary) Totals {
	return Totals{Decisions: s.Total, WithReference: s.WithReference, Cited: s.Cited}
}

// Renderer holds the parsed page templates.
type Renderer struct {
	topN       *template.Template
	statistics *template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	topN, err := parse("top_n.html.tmpl")
	if err != nil {
		return nil, err
	}
	statistics, err := parse("statistics.html.tmpl")
	if err != nil {
		return nil, err
	}
	return &Renderer{topN: topN, statistics: statistics}, nil
}

func parse(page string) (*template.Template, error) {
	t, err := template.New(page).Funcs(funcs).ParseFS(templateFS, "templates/layout.html.tmpl", "templates/"+page)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", page, err)
	}
	return t, nil
}

// RenderTopN writes the ranked decision table.
func (r *Renderer) RenderTopN(w io.Writer, page TopNPage) error {
	if err := r.topN.Execute(w, page); err != nil {
		return fmt.Errorf("render top-n report: %w", err)
	}
	return nil
}

// RenderStatistics writes the statistics page.
func (r *Renderer) RenderStatistics(w io.Writer, page StatisticsPage) error {
	if err := r.statistics.Execute(w, page); err != nil {
		return fmt.Errorf("render statistics report: %w", err)
	}
	return nil
}

type citedJSON struct {
	Rank        int    `json:"rank"`
	ID          string `json:"id"`
	DecisionRef string `json:"decision_ref"`
	Citations   int    `json:"citations"`
	Parties     string `json:"parties"`
	Court       string `json:"court"`
	DetailsURL  string `json:"details_url,omitempty"`
}

type statisticsJSON struct {
	GeneratedAt       string         `json:"generated_at"`
	TotalDecisions    int            `json:"total_decisions"`
	DecisionsWithRef  int            `json:"decisions_with_ref"`
	CitedDecisions    int            `json:"cited_decisions"`
	Incomplete        int            `json:"incomplete_decisions"`
	TotalCitations    int            `json:"total_citations"`
	CitationMin       int            `json:"citation_min"`
	CitationMax       int            `json:"citation_max"`
	CitationMean      float64        `json:"citation_mean"`
	CourtStats        map[string]int `json:"court_stats"`
	ActionStats       map[string]int `json:"action_stats"`
	MonthlyStats      map[string]int `json:"monthly_stats"`
	YearStats         map[string]int `json:"year_stats"`
	TopCited          []citedJSON    `json:"top_cited"`
	MostActiveParties map[string]int `json:"most_active_parties"`
}

// RenderStatisticsJSON writes the statistics as an indented JSON document.
func (r *Renderer) RenderStatisticsJSON(w io.Writer, page StatisticsPage) error {
	s := page.Summary
	doc := statisticsJSON{
		GeneratedAt:       page.GeneratedAt.UTC().Format(time.RFC3339),
		TotalDecisions:    s.Total,
		DecisionsWithRef:  s.WithReference,
		CitedDecisions:    s.Cited,
		Incomplete:        s.Incomplete,
		TotalCitations:    s.TotalCitations,
		CitationMin:       s.MinCitations,
		CitationMax:       s.MaxCitations,
		CitationMean:      s.MeanCitations,
		CourtStats:        asMap(s.ByCourt),
		ActionStats:       asMap(s.ByActionType),
		MonthlyStats:      asMap(s.ByMonth),
		YearStats:         asMap(s.ByYear),
		TopCited:          make([]citedJSON, 0, len(s.TopCited)),
		MostActiveParties: asMap(s.TopParties),
	}
	for _, e := range s.TopCited {
		doc.TopCited = append(doc.TopCited, citedJSON{
			Rank:        e.Rank,
			ID:          e.Decision.ID,
			DecisionRef: e.Decision.Reference,
			Citations:   e.Citations,
			Parties:     e.Decision.Parties,
			Court:       e.Decision.Court,
			DetailsURL:  e.Decision.DetailsURL(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("render statistics json: %w", err)
	}
	return nil
}

func asMap(counts []stats.Count) map[string]int {
	m := make(map[string]int, len(counts))
	for _, c := range counts {
		m[c.Key] = c.Count
	}
	return m
}

// Truncate shortens s to width runes and appends an ellipsis when cut.
func Truncate(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width]) + ellipsis
}

type chartData struct {
	Rows  []stats.Count
	Max   int
	Width int
}

var funcs = template.FuncMap{
	"truncate": Truncate,
	"parties":  func(s string) string { return Truncate(s, PartiesWidth) },
	"court":    func(s string) string { return Truncate(s, CourtWidth) },
	"action":   func(s string) string { return Truncate(s, ActionWidth) },
	"stamp": func(t time.Time) string {
		return t.UTC().Format("02 January 2006 at 15:04 UTC")
	},
	"detailsURL": func(d decision.Decision) string {
		if u := d.DetailsURL(); u != "" {
			return u
		}
		return "#"
	},
	"chart": func(rows []stats.Count, limit, width int) chartData {
		if limit > 0 && len(rows) > limit {
			rows = rows[:limit]
		}
		peak := 0
		for _, r := range rows {
			if r.Count > peak {
				peak = r.Count
			}
		}
		return chartData{Rows: rows, Max: peak, Width: width}
	},
	"percent": func(count, peak int) string {
		if peak <= 0 {
			return "0"
		}
		return strconv.FormatFloat(float64(count)*100/float64(peak), 'f', 1, 64)
	},
}
