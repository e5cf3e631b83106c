// Package parser turns raw UPC source documents into structured records.
// Each document shape has its own parser; failures are reported as
// *ParseError values and never panic into the caller.
package parser

import (
	"errors"
	"fmt"
)

// ErrParse matches every *ParseError via errors.Is.
var ErrParse = errors.New("parse error")

// ParseError describes a document whose structure could not be recognized.
type ParseError struct {
	Kind   string
	URL    string
	Row    int
	Reason string
}

func (e *ParseError) Error() string {
	switch {
	case e.URL != "" && e.Row > 0:
		return fmt.Sprintf("%s parse %s row %d: %s", e.Kind, e.URL, e.Row, e.Reason)
	case e.URL != "":
		return fmt.Sprintf("%s parse %s: %s", e.Kind, e.URL, e.Reason)
	default:
		return fmt.Sprintf("%s parse: %s", e.Kind, e.Reason)
	}
}

// Is lets errors.Is(err, ErrParse) match.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}
