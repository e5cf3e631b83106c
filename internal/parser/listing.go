package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const minListingCells = 5

var nodePattern = regexp.MustCompile(`/node/(\d+)`)

// Row is one decision row of the listing table.
type Row struct {
	Date       string
	Number     string
	Court      string
	ActionType string
	Parties    string
	PDFURL     string
	Node       string
}

// ListingPage is the parsed content of one listing page. HasTable is false
// when the page carries no decision table, which marks the end of paging.
type ListingPage struct {
	URL      string
	HasTable bool
	// RowCount counts table rows with data cells, parseable or not.
	RowCount int
	Rows     []Row
	Problems []*ParseError
}

// Exhausted reports whether the page ends the listing: no table, or a table
// without a single data row. A page of malformed rows is not exhausted.
func (p ListingPage) Exhausted() bool {
	if !p.HasTable {
		return true
	}
	return p.RowCount == 0 && len(p.Rows) == 0 && len(p.Problems) == 0
}

// ListingParser parses the "decisions and orders" HTML table.
type ListingParser struct{}

// NewListingParser returns a ListingParser.
func NewListingParser() *ListingParser {
	return &ListingParser{}
}

// Parse extracts decision rows. Rows with too few cells or without a usable
// number are reported in Problems; the rest of the page is still returned.
func (p *ListingParser) Parse(body []byte, pageURL string) (ListingPage, error) {
	page := ListingPage{URL: pageURL}
	base, err := url.Parse(pageURL)
	if err != nil {
		return page, &ParseError{Kind: "listing", URL: pageURL, Reason: fmt.Sprintf("invalid page url: %v", err)}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return page, &ParseError{Kind: "listing", URL: pageURL, Reason: fmt.Sprintf("read html: %v", err)}
	}

	table := doc.Find("table.views-table").First()
	if table.Length() == 0 {
		table = doc.Find("table").First()
	}
	if table.Length() == 0 {
		return page, nil
	}
	page.HasTable = true

	rows := table.Find("tbody tr")
	if rows.Length() == 0 {
		if all := table.Find("tr"); all.Length() > 1 {
			rows = all.Slice(1, goquery.ToEnd)
		}
	}
	rows.Each(func(i int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		page.RowCount++
		if cells.Length() < minListingCells {
			page.Problems = append(page.Problems, &ParseError{
				Kind: "listing", URL: pageURL, Row: i + 1,
				Reason: fmt.Sprintf("expected at least %d cells, got %d", minListingCells, cells.Length()),
			})
			return
		}
		row, ok := parseRow(cells, base)
		if !ok {
			page.Problems = append(page.Problems, &ParseError{
				Kind: "listing", URL: pageURL, Row: i + 1, Reason: "no registry number",
			})
			return
		}
		page.Rows = append(page.Rows, row)
	})
	return page, nil
}

func parseRow(cells *goquery.Selection, base *url.URL) (Row, bool) {
	text := func(i int) string {
		return strings.Join(strings.Fields(cells.Eq(i).Text()), " ")
	}

	row := Row{
		Date:       text(0),
		Court:      text(2),
		ActionType: text(3),
		Parties:    text(4),
	}
	for i := 1; i <= 2; i++ {
		if v := text(i); isValue(v) {
			row.Number = v
			break
		}
	}

	cells.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasSuffix(lower, ".pdf") && (row.PDFURL == "" || strings.Contains(lower, "en")) {
			row.PDFURL = resolve(base, href)
		}
		if m := nodePattern.FindStringSubmatch(href); m != nil {
			row.Node = m[1]
		}
	})

	return row, row.Number != "" || row.Node != ""
}

func isValue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "n/a", "-":
		return false
	}
	return true
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
