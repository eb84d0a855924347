package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// maxSignature bounds stored signature text.
const maxSignature = 300

func text(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(src)
}

// line returns the 1-based start line of n.
func line(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

// endLine returns the 1-based end line of n.
func endLine(n *sitter.Node) int { return int(n.EndPoint().Row) + 1 }

func column(n *sitter.Node) int    { return int(n.StartPoint().Column) }
func endColumn(n *sitter.Node) int { return int(n.EndPoint().Column) }

func field(n *sitter.Node, name string) *sitter.Node {
	if n == nil {
		return nil
	}
	return n.ChildByFieldName(name)
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// hasToken reports whether n has a direct anonymous child with the given text
// (keywords such as "default", "async", "static", "type").
func hasToken(n *sitter.Node, tok string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && !c.IsNamed() && c.Type() == tok {
			return true
		}
	}
	return false
}

func firstNamedOfType(n *sitter.Node, types ...string) *sitter.Node {
	for _, c := range namedChildren(n) {
		for _, t := range types {
			if c.Type() == t {
				return c
			}
		}
	}
	return nil
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// unquote strips the quotes of a string or template literal.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && last == first {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// stringLiteral returns the value of a string node, or "" if n is not a
// plain string (template strings with substitutions are rejected).
func stringLiteral(n *sitter.Node, src []byte) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "string":
		return unquote(text(n, src)), true
	case "template_string":
		if firstNamedOfType(n, "template_substitution") != nil {
			return "", false
		}
		return unquote(text(n, src)), true
	}
	return "", false
}

// collapse squeezes whitespace runs to single spaces and truncates to max bytes.
func collapse(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		s = s[:max]
	}
	return s
}

func isFunctionValue(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}
