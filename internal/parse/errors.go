package parse

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedLanguage is returned for paths whose extension has no grammar.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrSyntax is returned when the source does not parse cleanly.
	ErrSyntax = errors.New("syntax error")
)

// ParseError describes a file that could not be turned into an AST. The file
// is skipped; the rest of the run continues.
type ParseError struct {
	Path   string
	Line   int // 1-based, 0 if unknown
	Column int // 0-based
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %v", e.Path, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
