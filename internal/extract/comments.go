package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// docComment returns the documentation attached directly above n: a single
// /** ... */ block or a contiguous run of // lines. The comment must end on
// the line immediately before n (or on the same line).
func docComment(n *sitter.Node, src []byte) string {
	var lines []string
	next := n
	for prev := n.PrevSibling(); prev != nil && prev.Type() == "comment"; prev = prev.PrevSibling() {
		if endLine(prev) < line(next)-1 {
			break
		}
		raw := text(prev, src)
		switch {
		case strings.HasPrefix(raw, "/**"):
			if len(lines) > 0 {
				return strings.Join(lines, "\n")
			}
			return cleanBlockComment(raw)
		case strings.HasPrefix(raw, "//"):
			lines = append([]string{strings.TrimSpace(strings.TrimPrefix(raw, "//"))}, lines...)
			next = prev
		default:
			// plain /* */ blocks are not documentation
			return strings.Join(lines, "\n")
		}
	}
	return strings.Join(lines, "\n")
}

func cleanBlockComment(raw string) string {
	raw = strings.TrimPrefix(raw, "/**")
	raw = strings.TrimSuffix(raw, "*/")
	var out []string
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(l, "*")
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
