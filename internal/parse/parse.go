// Package parse turns source files into language-tagged syntax trees.
package parse

import (
	"bytes"
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// AST is a parsed file. The concrete type identifies the language family:
// *TypeScriptAST or *JavaScriptAST. No other implementations exist.
type AST interface {
	Path() string
	Language() Language
	Root() *sitter.Node
	Source() []byte
	// LineCount is the number of lines in Source, counting a final line
	// without a trailing newline.
	LineCount() int
	// Close releases the underlying tree.
	Close()

	isAST()
}

// tree carries what every AST variant shares.
type tree struct {
	path string
	src  []byte
	t    *sitter.Tree
}

func (t *tree) Path() string       { return t.path }
func (t *tree) Root() *sitter.Node { return t.t.RootNode() }
func (t *tree) Source() []byte     { return t.src }
func (t *tree) LineCount() int     { return bytes.Count(t.src, []byte("\n")) + 1 }
func (t *tree) Close()             { t.t.Close() }

// TypeScriptAST is a tree parsed with the TypeScript or TSX grammar.
type TypeScriptAST struct {
	tree
	TSX bool
}

func (*TypeScriptAST) isAST() {}

func (a *TypeScriptAST) Language() Language {
	if a.TSX {
		return TSX
	}
	return TypeScript
}

// JavaScriptAST is a tree parsed with the JavaScript grammar (JSX included).
type JavaScriptAST struct {
	tree
}

func (*JavaScriptAST) isAST() {}

func (*JavaScriptAST) Language() Language { return JavaScript }

// Parser is the parsing capability the indexing pipeline depends on.
type Parser interface {
	IsSupported(path string) bool
	Parse(ctx context.Context, path string, content []byte) (AST, error)
}

// TreeSitter is the tree-sitter backed Parser. The zero value is ready to
// use and safe for concurrent calls; each Parse uses its own sitter.Parser.
type TreeSitter struct{}

var _ Parser = TreeSitter{}

// IsSupported reports whether path has a known grammar.
func (TreeSitter) IsSupported(path string) bool {
	return IsSupported(path)
}

// Parse parses content as the language implied by path. On any failure it
// returns a nil AST and a *ParseError; it never panics.
func (TreeSitter) Parse(ctx context.Context, path string, content []byte) (ast AST, err error) {
	lang, ok := LanguageForFile(path)
	if !ok {
		return nil, &ParseError{Path: path, Err: ErrUnsupportedLanguage}
	}
	grammar, ok := grammarFor(lang)
	if !ok {
		return nil, &ParseError{Path: path, Err: ErrUnsupportedLanguage}
	}

	defer func() {
		if r := recover(); r != nil {
			ast = nil
			err = &ParseError{Path: path, Err: fmt.Errorf("%w: parser panic: %v", ErrSyntax, r)}
		}
	}()

	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(grammar)

	t, perr := p.ParseCtx(ctx, nil, content)
	if perr != nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("%w: %v", ErrSyntax, perr)}
	}
	root := t.RootNode()
	if root.HasError() {
		line, col := firstErrorPosition(root)
		t.Close()
		return nil, &ParseError{Path: path, Line: line, Column: col, Err: ErrSyntax}
	}

	base := tree{path: path, src: content, t: t}
	switch lang {
	case TypeScript:
		return &TypeScriptAST{tree: base}, nil
	case TSX:
		return &TypeScriptAST{tree: base, TSX: true}, nil
	default:
		return &JavaScriptAST{tree: base}, nil
	}
}

// Parse parses with the default TreeSitter parser.
func Parse(ctx context.Context, path string, content []byte) (AST, error) {
	return TreeSitter{}.Parse(ctx, path, content)
}

// firstErrorPosition finds the first ERROR or missing node in document order.
func firstErrorPosition(n *sitter.Node) (int, int) {
	if n.Type() == "ERROR" || n.IsMissing() {
		p := n.StartPoint()
		return int(p.Row) + 1, int(p.Column)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && (c.HasError() || c.IsMissing()) {
			return firstErrorPosition(c)
		}
	}
	p := n.StartPoint()
	return int(p.Row) + 1, int(p.Column)
}
