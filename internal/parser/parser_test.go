package parser

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<html><body>
<table class="views-table">
  <thead><tr><th>Date</th><th>Registry</th><th>Court</th><th>Type</th><th>Parties</th></tr></thead>
  <tbody>
    <tr>
      <td> 12 May 2025 </td>
      <td>ORD_12345/2025</td>
      <td>Local Division Munich</td>
      <td>Infringement action</td>
      <td><a href="/en/node/987">Alpha GmbH v. Beta &lt;Inc&gt;</a></td>
      <td><a href="/sites/default/files/upc_documents/decision_de.pdf">DE</a>
          <a href="/sites/default/files/upc_documents/decision_en.pdf">EN</a></td>
    </tr>
    <tr>
      <td>2025-05-10</td>
      <td>n/a</td>
      <td>CoA_555/2025</td>
      <td>Appeal</td>
      <td>Gamma v. Delta</td>
    </tr>
    <tr><td>broken</td><td>row</td></tr>
    <tr><td>2025-05-01</td><td>-</td><td>-</td><td>Appeal</td><td>nobody</td></tr>
  </tbody>
</table>
</body></html>`

func TestListingParserParsesRows(t *testing.T) {
	t.Parallel()

	page, err := NewListingParser().Parse([]byte(listingHTML), "https://www.unified-patent-court.org/en/decisions-and-orders?page=0")
	require.NoError(t, err)
	require.True(t, page.HasTable)
	assert.Equal(t, 4, page.RowCount)
	assert.False(t, page.Exhausted())
	require.Len(t, page.Rows, 2)

	first := page.Rows[0]
	assert.Equal(t, "12 May 2025", first.Date)
	assert.Equal(t, "ORD_12345/2025", first.Number)
	assert.Equal(t, "Local Division Munich", first.Court)
	assert.Equal(t, "Infringement action", first.ActionType)
	assert.Equal(t, "Alpha GmbH v. Beta <Inc>", first.Parties)
	assert.Equal(t, "987", first.Node)
	assert.Equal(t, "https://www.unified-patent-court.org/sites/default/files/upc_documents/decision_en.pdf", first.PDFURL)

	second := page.Rows[1]
	assert.Equal(t, "CoA_555/2025", second.Number, "number falls through to the next cell")
	assert.Empty(t, second.PDFURL)

	require.Len(t, page.Problems, 2)
	assert.Contains(t, page.Problems[0].Error(), "expected at least 5 cells")
	assert.Contains(t, page.Problems[1].Error(), "no registry number")
	assert.True(t, errors.Is(page.Problems[0], ErrParse))
}

func TestListingParserFallsBackToFirstTable(t *testing.T) {
	t.Parallel()

	body := `<table><tr><th>h</th></tr><tr><td>2024-01-01</td><td>X_1</td><td>CoA</td><td>Appeal</td><td>A v. B</td></tr></table>`
	page, err := NewListingParser().Parse([]byte(body), "https://example.org/list")
	require.NoError(t, err)
	require.True(t, page.HasTable)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "X_1", page.Rows[0].Number)
}

func TestListingParserWithoutTable(t *testing.T) {
	t.Parallel()

	page, err := NewListingParser().Parse([]byte(`<html><body><p>No results</p></body></html>`), "https://example.org/list")
	require.NoError(t, err)
	assert.False(t, page.HasTable)
	assert.Empty(t, page.Rows)
	assert.True(t, page.Exhausted())
}

func TestListingPageExhaustion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want bool
	}{
		{
			name: "no rows",
			body: `<table></table>`,
			want: true,
		},
		{
			name: "header only",
			body: `<table><thead><tr><th>Date</th></tr></thead><tbody></tbody></table>`,
			want: true,
		},
		{
			name: "only malformed rows",
			body: `<table><tbody><tr><td>broken</td><td>row</td></tr><tr><td>x</td></tr></tbody></table>`,
			want: false,
		},
		{
			name: "valid row",
			body: `<table><tbody><tr><td>2024-01-01</td><td>X_1</td><td>CoA</td><td>Appeal</td><td>A v. B</td></tr></tbody></table>`,
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page, err := NewListingParser().Parse([]byte(tt.body), "https://example.org/list")
			require.NoError(t, err)
			require.True(t, page.HasTable)
			assert.Equal(t, tt.want, page.Exhausted())
		})
	}
}

func TestListingParserRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewListingParser().Parse([]byte(listingHTML), "://bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestExtractReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "full cfi", text: "Decision UPC_CFI_123/2024 of the LD", want: "UPC_CFI_123/2024"},
		{name: "cfi pattern tried before coa", text: "UPC_CoA_9/2025 upheld UPC_CFI_1/2024", want: "UPC_CFI_1/2024"},
		{name: "coa", text: "Order UPC_CoA_335/2023", want: "UPC_CoA_335/2023"},
		{name: "short cfi gets prefix", text: "ref CFI_77/2024.", want: "UPC_CFI_77/2024"},
		{name: "short coa gets prefix", text: "CoA_5/2025", want: "UPC_CoA_5/2025"},
		{name: "pre 2000 ignored", text: "CFI_1/1999", want: ""},
		{name: "none", text: "no reference here", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractReference(tt.text))
		})
	}
}

// onePagePDF builds a single-page PDF whose content stream shows text in
// Helvetica, with a correct cross-reference table.
func onePagePDF(text string) []byte {
	content := ""
	if text != "" {
		content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	}
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestDocumentParserExtractsTextAndReference(t *testing.T) {
	t.Parallel()

	doc, err := NewDocumentParser().Parse(onePagePDF("Decision UPC_CFI_123/2024 of the Local Division"))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Pages)
	assert.Zero(t, doc.SkippedPages)
	assert.Contains(t, doc.Text, "UPC_CFI_123/2024")
	assert.Equal(t, "UPC_CFI_123/2024", doc.Reference)
}

func TestDocumentParserRejectsPDFWithoutText(t *testing.T) {
	t.Parallel()

	doc, err := NewDocumentParser().Parse(onePagePDF(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
	assert.Contains(t, err.Error(), "no extractable text")
	assert.Equal(t, 1, doc.Pages)
	assert.Empty(t, doc.Reference)
}

func TestDocumentParserRejectsGarbage(t *testing.T) {
	t.Parallel()

	p := NewDocumentParser()
	for _, body := range [][]byte{nil, []byte("definitely not a pdf")} {
		_, err := p.Parse(body)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrParse)
	}
}

func TestParseErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "document parse: empty body", (&ParseError{Kind: "document", Reason: "empty body"}).Error())
	assert.Equal(t, "listing parse https://x: boom", (&ParseError{Kind: "listing", URL: "https://x", Reason: "boom"}).Error())
}
