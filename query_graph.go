package codegraph

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/jward/codegraph/internal/metrics"
)

// Direction selects which way impact traversal follows edges.
type Direction string

const (
	// Forward follows edges from a file to what it depends on.
	Forward Direction = "forward"
	// Reverse follows edges from a file to what depends on it.
	Reverse Direction = "reverse"
)

// ParseDirection validates a direction name. Empty means Reverse.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(s)) {
	case Forward:
		return Forward, nil
	case Reverse, "":
		return Reverse, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

const (
	// DefaultImpactDepth is used when ImpactOptions.MaxDepth is zero.
	DefaultImpactDepth = 3
	maxImpactDepth     = 100

	minDepsDepth = 1
	maxDepsDepth = 5
)

// ImpactOptions controls an impact query.
type ImpactOptions struct {
	Direction Direction
	// MaxDepth bounds the traversal; zero means DefaultImpactDepth and
	// values above 100 are capped.
	MaxDepth int
	// ExcludeTests drops test files from the result and stops traversal
	// through them.
	ExcludeTests bool
}

// ImpactNode is a file reached by the traversal.
type ImpactNode struct {
	FileID int64  `json:"file_id"`
	Path   string `json:"path"`
	Depth  int    `json:"depth"`
	IsTest bool   `json:"is_test,omitempty"`
}

// ImpactResult is the outcome of an impact query. Nodes are ordered by
// depth, then path. The target file appears only when a cycle leads back
// to it.
type ImpactResult struct {
	Target     string       `json:"target"`
	Direction  Direction    `json:"direction"`
	MaxDepth   int          `json:"max_depth"`
	Nodes      []ImpactNode `json:"nodes"`
	TotalFiles int          `json:"total_files"`
	// Score sums 1/depth over impacted files.
	Score float64 `json:"score"`
	// Risk is impacted files over total files, at most 1.
	Risk float64 `json:"risk"`
}

// Paths returns the node paths in result order.
func (r *ImpactResult) Paths() []string {
	out := make([]string, len(r.Nodes))
	for i, n := range r.Nodes {
		out[i] = n.Path
	}
	return out
}

// graphData is the bulk-loaded file graph of one repository. Files get
// dense indices in path order; adjacency lists hold those indices.
type graphData struct {
	files       []*File
	paths       map[int64]string
	fileByPath  map[string]int64
	index       map[int64]int
	forward     [][]int
	reverse     [][]int
	edges       []*Edge
	symbolNames map[int64]string
}

// loadGraph reads all files and edges of the repository and builds the
// file-level projection in both directions, without duplicate neighbors.
func (q *QueryBuilder) loadGraph(ctx context.Context, repoID string) (*graphData, error) {
	files, err := q.store.FilesByRepository(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("load files: %w", err)
	}
	edges, err := q.store.EdgesByRepository(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	syms, err := q.store.SymbolsByRepository(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("load symbols: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	g := &graphData{
		files:       files,
		paths:       make(map[int64]string, len(files)),
		fileByPath:  make(map[string]int64, len(files)),
		index:       make(map[int64]int, len(files)),
		forward:     make([][]int, len(files)),
		reverse:     make([][]int, len(files)),
		edges:       edges,
		symbolNames: make(map[int64]string, len(syms)),
	}
	for i, f := range files {
		g.paths[f.ID] = f.Path
		g.fileByPath[f.Path] = f.ID
		g.index[f.ID] = i
	}
	for _, s := range syms {
		g.symbolNames[s.ID] = s.Name
	}

	type pair struct{ from, to int }
	seen := make(map[pair]bool)
	for _, e := range edges {
		from, ok1 := g.index[e.FromFileID]
		to, ok2 := g.index[e.ToFileID]
		if !ok1 || !ok2 || from == to {
			continue
		}
		p := pair{from, to}
		if seen[p] {
			continue
		}
		seen[p] = true
		g.forward[from] = append(g.forward[from], to)
		g.reverse[to] = append(g.reverse[to], from)
	}
	for i := range g.forward {
		sort.Ints(g.forward[i])
		sort.Ints(g.reverse[i])
	}
	return g, nil
}

// symbolNeighbors returns the first hop for a symbol target: files whose
// edges start at (forward) or end at (reverse) the symbol.
func (g *graphData) symbolNeighbors(symbolIDs map[int64]bool, dir Direction) []int {
	set := make(map[int]bool)
	for _, e := range g.edges {
		var sym *int64
		var other int64
		if dir == Forward {
			sym, other = e.FromSymbolID, e.ToFileID
		} else {
			sym, other = e.ToSymbolID, e.FromFileID
		}
		if sym == nil || !symbolIDs[*sym] {
			continue
		}
		if idx, ok := g.index[other]; ok {
			set[idx] = true
		}
	}
	out := make([]int, 0, len(set))
	for idx := range set {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Impact finds the files affected by (reverse) or required by (forward)
// target, which is a file path or "path#symbol".
func (q *QueryBuilder) Impact(ctx context.Context, repoID, target string, opts ImpactOptions) (*ImpactResult, error) {
	defer metrics.ObserveQuery("impact", time.Now())
	if opts.MaxDepth < 0 {
		return nil, fmt.Errorf("impact: %w, got %d", ErrInvalidDepth, opts.MaxDepth)
	}
	depth := opts.MaxDepth
	if depth == 0 {
		depth = DefaultImpactDepth
	}
	depth = min(depth, maxImpactDepth)
	dir, err := ParseDirection(string(opts.Direction))
	if err != nil {
		return nil, fmt.Errorf("impact: %w", err)
	}

	filePath, symbolName, _ := strings.Cut(target, "#")
	g, err := q.loadGraph(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("impact: %w", err)
	}
	rootID, ok := g.fileByPath[filePath]
	if !ok {
		return nil, fmt.Errorf("impact: %w: %s", ErrTargetNotFound, filePath)
	}
	root := g.index[rootID]

	adj := g.reverse
	if dir == Forward {
		adj = g.forward
	}
	first := adj[root]
	if symbolName != "" {
		syms, err := q.store.SymbolsByFile(ctx, rootID)
		if err != nil {
			return nil, fmt.Errorf("impact: %w", err)
		}
		ids := make(map[int64]bool)
		for _, s := range syms {
			if s.Name == symbolName {
				ids[s.ID] = true
			}
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("impact: %w: %s", ErrTargetNotFound, target)
		}
		first = g.symbolNeighbors(ids, dir)
	}

	res := &ImpactResult{
		Target:     target,
		Direction:  dir,
		MaxDepth:   depth,
		Nodes:      []ImpactNode{},
		TotalFiles: len(g.files),
	}
	skip := func(idx int) bool {
		return opts.ExcludeTests && IsTestFile(g.files[idx].Path)
	}

	// The root is marked visited up front so it is never expanded twice;
	// reaching it again through a cycle records it once.
	visited := bitset.New(uint(len(g.files)))
	visited.Set(uint(root))
	rootReached := false
	depthOf := make([]int, len(g.files))

	type entry struct{ idx, depth int }
	var queue []entry
	visit := func(n, d int) {
		if n == root {
			if !rootReached && !skip(n) {
				rootReached = true
				depthOf[n] = d
			}
			return
		}
		if visited.Test(uint(n)) || skip(n) {
			return
		}
		visited.Set(uint(n))
		depthOf[n] = d
		queue = append(queue, entry{n, d})
	}

	for _, n := range first {
		visit(n, 1)
	}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= depth {
			continue
		}
		for _, n := range adj[cur.idx] {
			visit(n, cur.depth+1)
		}
	}

	for i, ok := visited.NextSet(0); ok; i, ok = visited.NextSet(i + 1) {
		idx := int(i)
		if idx == root && !rootReached {
			continue
		}
		f := g.files[idx]
		res.Nodes = append(res.Nodes, ImpactNode{
			FileID: f.ID,
			Path:   f.Path,
			Depth:  depthOf[idx],
			IsTest: IsTestFile(f.Path),
		})
		res.Score += 1 / float64(depthOf[idx])
	}
	sort.SliceStable(res.Nodes, func(i, j int) bool {
		if res.Nodes[i].Depth != res.Nodes[j].Depth {
			return res.Nodes[i].Depth < res.Nodes[j].Depth
		}
		return res.Nodes[i].Path < res.Nodes[j].Path
	})
	if res.TotalFiles > 0 {
		res.Risk = min(1, float64(len(res.Nodes))/float64(res.TotalFiles))
	}
	return res, nil
}

// DependencyReport lists what a file depends on and what depends on it.
// Test files among the dependents are reported separately.
type DependencyReport struct {
	File         string   `json:"file"`
	Depth        int      `json:"depth"`
	Dependents   []string `json:"dependents"`
	Dependencies []string `json:"dependencies"`
	TestFiles    []string `json:"testFiles"`
}

// Dependencies walks both directions from path up to depth, which is
// clamped to 1..5.
func (q *QueryBuilder) Dependencies(ctx context.Context, repoID, filePath string, depth int) (*DependencyReport, error) {
	defer metrics.ObserveQuery("deps", time.Now())
	depth = max(minDepsDepth, min(depth, maxDepsDepth))

	rev, err := q.Impact(ctx, repoID, filePath, ImpactOptions{Direction: Reverse, MaxDepth: depth})
	if err != nil {
		return nil, fmt.Errorf("deps: %w", err)
	}
	fwd, err := q.Impact(ctx, repoID, filePath, ImpactOptions{Direction: Forward, MaxDepth: depth})
	if err != nil {
		return nil, fmt.Errorf("deps: %w", err)
	}

	r := &DependencyReport{
		File:         filePath,
		Depth:        depth,
		Dependents:   []string{},
		Dependencies: []string{},
		TestFiles:    []string{},
	}
	for _, n := range rev.Nodes {
		if n.Path == filePath {
			continue
		}
		if n.IsTest {
			r.TestFiles = append(r.TestFiles, n.Path)
		} else {
			r.Dependents = append(r.Dependents, n.Path)
		}
	}
	for _, n := range fwd.Nodes {
		if n.Path != filePath {
			r.Dependencies = append(r.Dependencies, n.Path)
		}
	}
	sort.Strings(r.Dependents)
	sort.Strings(r.Dependencies)
	sort.Strings(r.TestFiles)
	return r, nil
}

var testDirs = map[string]bool{"__tests__": true, "__test__": true, "test": true, "tests": true, "__mocks__": true}

// IsTestFile reports whether p looks like a test: *.test.*, *.spec.* or a
// file under a test directory.
func IsTestFile(p string) bool {
	base := path.Base(p)
	if strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return true
	}
	for _, seg := range strings.Split(path.Dir(p), "/") {
		if testDirs[seg] {
			return true
		}
	}
	return false
}
