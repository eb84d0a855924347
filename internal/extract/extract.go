// Package extract walks parsed TypeScript and JavaScript trees and produces
// the symbol and reference rows of a single file. Extraction is pure: it
// reads only the AST and can be rerun at any time with the same result.
package extract

import (
	"github.com/jward/codegraph/internal/parse"
	"github.com/jward/codegraph/internal/store"
)

// Result holds everything extracted from one file.
type Result struct {
	Symbols    []store.Symbol
	References []store.Reference
}

// File runs both extractors over ast.
func File(ast parse.AST) Result {
	return Result{
		Symbols:    Symbols(ast),
		References: References(ast),
	}
}
