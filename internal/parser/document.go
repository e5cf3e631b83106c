package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// referencePatterns are tried in order; the first match wins.
var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`UPC_CFI_\d+/20\d{2}`),
	regexp.MustCompile(`UPC_CoA_\d+/20\d{2}`),
	regexp.MustCompile(`CFI_\d+/20\d{2}`),
	regexp.MustCompile(`CoA_\d+/20\d{2}`),
}

// Document is the text content of a decision PDF.
type Document struct {
	Text         string
	Reference    string
	Pages        int
	SkippedPages int
}

// DocumentParser extracts text and the decision reference from PDF bytes.
type DocumentParser struct{}

// NewDocumentParser returns a DocumentParser.
func NewDocumentParser() *DocumentParser {
	return &DocumentParser{}
}

// Parse reads every page it can. A PDF that cannot be opened, or that yields
// no text at all, is a *ParseError.
func (p *DocumentParser) Parse(body []byte) (doc Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = Document{}
			err = &ParseError{Kind: "document", Reason: fmt.Sprintf("malformed pdf: %v", r)}
		}
	}()

	if len(body) == 0 {
		return Document{}, &ParseError{Kind: "document", Reason: "empty body"}
	}
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return Document{}, &ParseError{Kind: "document", Reason: fmt.Sprintf("open pdf: %v", err)}
	}

	var b strings.Builder
	doc.Pages = reader.NumPage()
	for i := 1; i <= doc.Pages; i++ {
		text, ok := pageText(reader, i)
		if !ok {
			doc.SkippedPages++
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	doc.Text = b.String()
	if strings.TrimSpace(doc.Text) == "" {
		return doc, &ParseError{Kind: "document", Reason: "no extractable text"}
	}
	doc.Reference = ExtractReference(doc.Text)
	return doc, nil
}

func pageText(reader *pdf.Reader, n int) (text string, ok bool) {
	defer func() {
		if recover() != nil {
			text, ok = "", false
		}
	}()
	page := reader.Page(n)
	if page.V.IsNull() {
		return "", false
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", false
	}
	return text, true
}

// ExtractReference finds the decision reference in text and normalizes it
// to carry the UPC_ prefix. It returns "" when nothing matches.
func ExtractReference(text string) string {
	for _, re := range referencePatterns {
		if ref := re.FindString(text); ref != "" {
			if !strings.HasPrefix(ref, "UPC_") {
				ref = "UPC_" + ref
			}
			return ref
		}
	}
	return ""
}
