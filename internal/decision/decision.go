// Package decision defines the UPC decision record, partial candidates and
// the in-memory Snapshot the pipeline mutates during a run.
package decision

import (
	"regexp"
	"strings"
	"time"
)

// DetailsBaseURL is the prefix of the public details page for a decision node.
const DetailsBaseURL = "https://www.unified-patent-court.org/en/node/"

// Clock supplies timestamps for created/updated/fetched bookkeeping.
type Clock interface {
	Now() time.Time
}

// Decision is one tracked UPC ruling.
type Decision struct {
	ID          string
	Date        string
	Court       string
	ActionType  string
	Parties     string
	SourceURL   string
	Node        string
	Reference   string
	FullText    string
	ContentHash string
	ParseError  string
	Citations   int
	FetchedAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Complete reports whether the decision carries every field ranking needs.
func (d Decision) Complete() bool {
	return d.ParseError == "" &&
		strings.TrimSpace(d.Reference) != "" &&
		strings.TrimSpace(d.Court) != "" &&
		strings.TrimSpace(d.Date) != ""
}

// DetailsURL links to the decision page on the court website, or "" without a node.
func (d Decision) DetailsURL() string {
	if d.Node == "" {
		return ""
	}
	return DetailsBaseURL + d.Node
}

var (
	yearPattern  = regexp.MustCompile(`^(\d{4})`)
	monthPattern = regexp.MustCompile(`^(\d{4}-\d{2})`)
)

// Year returns the four digit year of Date, or "unknown".
func (d Decision) Year() string {
	if m := yearPattern.FindStringSubmatch(d.Date); m != nil {
		return m[1]
	}
	return "unknown"
}

// Month returns the YYYY-MM prefix of Date, or "" when Date is not normalized.
func (d Decision) Month() string {
	if m := monthPattern.FindStringSubmatch(d.Date); m != nil {
		return m[1]
	}
	return ""
}

// Equal compares every field, using time.Time.Equal for timestamps.
func (d Decision) Equal(o Decision) bool {
	return d.sameContent(o) &&
		d.FetchedAt.Equal(o.FetchedAt) &&
		d.CreatedAt.Equal(o.CreatedAt) &&
		d.UpdatedAt.Equal(o.UpdatedAt)
}

func (d Decision) sameContent(o Decision) bool {
	return d.ID == o.ID &&
		d.Date == o.Date &&
		d.Court == o.Court &&
		d.ActionType == o.ActionType &&
		d.Parties == o.Parties &&
		d.SourceURL == o.SourceURL &&
		d.Node == o.Node &&
		d.Reference == o.Reference &&
		d.FullText == o.FullText &&
		d.ContentHash == o.ContentHash &&
		d.ParseError == o.ParseError &&
		d.Citations == o.Citations
}

// Candidate is a partially populated decision produced by a fetch or by
// citation analysis. Empty strings mean "not present"; the pointer fields
// distinguish an explicit zero or clear from absence.
type Candidate struct {
	ID          string
	Number      string
	Node        string
	Date        string
	Court       string
	ActionType  string
	Parties     string
	SourceURL   string
	Reference   string
	FullText    string
	ContentHash string
	ParseError  *string
	Citations   *int
	FetchedAt   time.Time
}

// Identifier returns the stable identifier of the candidate.
func (c Candidate) Identifier() (string, bool) {
	if id := strings.TrimSpace(c.ID); id != "" {
		return id, true
	}
	id := Identifier(c.Number, c.Node)
	return id, id != ""
}

// Apply merges the fields present in c into d and reports whether any
// content field changed. FetchedAt is refreshed but never counts as a change.
func (d *Decision) Apply(c Candidate) bool {
	changed := false
	set := func(dst *string, v string) {
		if v == "" || *dst == v {
			return
		}
		*dst = v
		changed = true
	}
	set(&d.Date, c.Date)
	set(&d.Court, c.Court)
	set(&d.ActionType, c.ActionType)
	set(&d.Parties, c.Parties)
	set(&d.SourceURL, c.SourceURL)
	set(&d.Node, c.Node)
	set(&d.Reference, c.Reference)
	set(&d.FullText, c.FullText)
	set(&d.ContentHash, c.ContentHash)
	if c.ParseError != nil && *c.ParseError != d.ParseError {
		d.ParseError = *c.ParseError
		changed = true
	}
	if c.Citations != nil && *c.Citations != d.Citations {
		d.Citations = *c.Citations
		changed = true
	}
	if !c.FetchedAt.IsZero() {
		d.FetchedAt = c.FetchedAt
	}
	return changed
}

var whitespace = regexp.MustCompile(`\s+`)

// Identifier derives the stable identifier from a registry number, falling
// back to the site node id. It returns "" when neither is usable.
func Identifier(number, node string) string {
	n := whitespace.ReplaceAllString(strings.TrimSpace(number), " ")
	switch strings.ToLower(n) {
	case "", "n/a", "-":
		n = ""
	}
	if n != "" {
		return n
	}
	node = strings.TrimSpace(node)
	if node != "" {
		return "node:" + node
	}
	return ""
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"2 January 2006",
	"02 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// NormalizeDate converts listing dates to YYYY-MM-DD; unknown layouts are
// returned trimmed but otherwise untouched.
func NormalizeDate(raw string) string {
	s := whitespace.ReplaceAllString(strings.TrimSpace(raw), " ")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}
