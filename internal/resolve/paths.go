package resolve

import (
	"path"
	"strings"
)

// candidateExtensions is the order in which extensions are tried for an
// extensionless specifier.
var candidateExtensions = []string{".ts", ".tsx", ".mts", ".cts", ".d.ts", ".js", ".jsx", ".mjs", ".cjs"}

// jsToTS maps emitted-JS extensions to the TypeScript sources they come from.
var jsToTS = map[string][]string{
	".js":  {".ts", ".tsx"},
	".jsx": {".tsx"},
	".mjs": {".mts"},
	".cjs": {".cts"},
}

// IsRelative reports whether spec points into the repository rather than at
// a package.
func IsRelative(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") ||
		strings.HasPrefix(spec, "/") || spec == "." || spec == ".."
}

// Candidates returns the repository paths tried for spec imported from
// importer, in lookup order. Paths are slash separated and relative to the
// repository root.
func Candidates(importer, spec string) []string {
	if !IsRelative(spec) {
		return nil
	}
	var base string
	if strings.HasPrefix(spec, "/") {
		base = path.Clean(strings.TrimPrefix(spec, "/"))
	} else {
		base = path.Join(path.Dir(importer), spec)
	}
	if base == ".." || strings.HasPrefix(base, "../") {
		return nil
	}

	out := []string{base}
	for _, ext := range candidateExtensions {
		out = append(out, base+ext)
	}
	ext := path.Ext(base)
	if subs, ok := jsToTS[ext]; ok {
		stem := strings.TrimSuffix(base, ext)
		for _, s := range subs {
			out = append(out, stem+s)
		}
	}
	for _, ext := range candidateExtensions {
		out = append(out, path.Join(base, "index"+ext))
	}
	return out
}

// resolvePath returns the first candidate for spec that exists.
func resolvePath(importer, spec string, exists func(string) bool) (string, bool) {
	for _, c := range Candidates(importer, spec) {
		if exists(c) {
			return c, true
		}
	}
	return "", false
}
