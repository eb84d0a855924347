package codegraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/codegraph/internal/search"
)

// chain indexes c.ts -> b.ts -> a.ts plus a test of a.ts.
func chain(t *testing.T) *QueryBuilder {
	t.Helper()
	e, _ := newTestEngine(t)
	_, err := e.IndexFiles(context.Background(), Repository{ID: "repo"}, src(
		"src/a.ts", "export function a() {\n  return 1;\n}\n",
		"src/b.ts", "import { a } from './a';\nexport function b() {\n  return a();\n}\n",
		"src/c.ts", "import { b } from './b';\nexport function c() {\n  return b();\n}\n",
		"src/__tests__/a.test.ts", "import { a } from '../a';\na();\n",
	))
	require.NoError(t, err)
	return e.Query()
}

func depths(r *ImpactResult) map[string]int {
	out := make(map[string]int, len(r.Nodes))
	for _, n := range r.Nodes {
		out[n.Path] = n.Depth
	}
	return out
}

func TestImpact_ReverseChain(t *testing.T) {
	ctx := context.Background()
	q := chain(t)

	r, err := q.Impact(ctx, "repo", "src/a.ts", ImpactOptions{Direction: Reverse, MaxDepth: 2, ExcludeTests: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/b.ts", "src/c.ts"}, r.Paths())
	assert.Equal(t, map[string]int{"src/b.ts": 1, "src/c.ts": 2}, depths(r))
	assert.InDelta(t, 1.5, r.Score, 1e-9)
	assert.InDelta(t, 0.5, r.Risk, 1e-9)
	assert.Equal(t, 4, r.TotalFiles)

	r, err = q.Impact(ctx, "repo", "src/a.ts", ImpactOptions{Direction: Reverse, MaxDepth: 1, ExcludeTests: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/b.ts"}, r.Paths())
}

func TestImpact_IncludesTestsByDefault(t *testing.T) {
	q := chain(t)
	r, err := q.Impact(context.Background(), "repo", "src/a.ts", ImpactOptions{MaxDepth: 1})
	require.NoError(t, err)
	assert.Equal(t, Reverse, r.Direction)
	assert.Equal(t, []string{"src/__tests__/a.test.ts", "src/b.ts"}, r.Paths())
	assert.True(t, r.Nodes[0].IsTest)
}

func TestImpact_Forward(t *testing.T) {
	q := chain(t)
	r, err := q.Impact(context.Background(), "repo", "src/c.ts", ImpactOptions{Direction: Forward})
	require.NoError(t, err)
	assert.Equal(t, DefaultImpactDepth, r.MaxDepth)
	assert.Equal(t, map[string]int{"src/b.ts": 1, "src/a.ts": 2}, depths(r))
}

func TestImpact_SymbolTarget(t *testing.T) {
	ctx := context.Background()
	q := chain(t)

	r, err := q.Impact(ctx, "repo", "src/b.ts#b", ImpactOptions{Direction: Reverse, MaxDepth: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/c.ts"}, r.Paths())

	_, err = q.Impact(ctx, "repo", "src/b.ts#nope", ImpactOptions{})
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestImpact_Cycle(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	_, err := e.IndexFiles(ctx, Repository{ID: "repo"}, src(
		"A.ts", "import { b } from './B';\nexport function a() {\n  return b();\n}\n",
		"B.ts", "import { a } from './A';\nexport function b() {\n  return a();\n}\n",
	))
	require.NoError(t, err)

	for _, dir := range []Direction{Reverse, Forward} {
		r, err := e.Query().Impact(ctx, "repo", "A.ts", ImpactOptions{Direction: dir, MaxDepth: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"B.ts", "A.ts"}, r.Paths(), "direction %s", dir)
		assert.Equal(t, map[string]int{"B.ts": 1, "A.ts": 2}, depths(r))
		assert.InDelta(t, 1.0, r.Risk, 1e-9)
	}
}

func TestImpact_Errors(t *testing.T) {
	ctx := context.Background()
	q := chain(t)

	_, err := q.Impact(ctx, "repo", "src/a.ts", ImpactOptions{MaxDepth: -1})
	assert.ErrorIs(t, err, ErrInvalidDepth)

	_, err = q.Impact(ctx, "repo", "src/a.ts", ImpactOptions{Direction: "sideways"})
	assert.ErrorIs(t, err, ErrInvalidDirection)

	_, err = q.Impact(ctx, "repo", "missing.ts", ImpactOptions{})
	assert.ErrorIs(t, err, ErrTargetNotFound)

	_, err = q.Impact(ctx, "other-repo", "src/a.ts", ImpactOptions{})
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestImpact_DepthIsCapped(t *testing.T) {
	q := chain(t)
	r, err := q.Impact(context.Background(), "repo", "src/a.ts", ImpactOptions{MaxDepth: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, r.MaxDepth)
}

func TestDependencies(t *testing.T) {
	ctx := context.Background()
	q := chain(t)

	r, err := q.Dependencies(ctx, "repo", "src/b.ts", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Depth)
	assert.Equal(t, []string{"src/c.ts"}, r.Dependents)
	assert.Equal(t, []string{"src/a.ts"}, r.Dependencies)
	assert.Empty(t, r.TestFiles)

	r, err = q.Dependencies(ctx, "repo", "src/a.ts", 9)
	require.NoError(t, err)
	assert.Equal(t, 5, r.Depth)
	assert.Equal(t, []string{"src/b.ts", "src/c.ts"}, r.Dependents)
	assert.Empty(t, r.Dependencies)
	assert.Equal(t, []string{"src/__tests__/a.test.ts"}, r.TestFiles)
}

func TestQuery_Lookups(t *testing.T) {
	ctx := context.Background()
	q := chain(t)

	f, err := q.FileByPath(ctx, "repo", "src/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "typescript", f.Language)

	_, err = q.FileByPath(ctx, "repo", "nope.ts")
	assert.ErrorIs(t, err, ErrTargetNotFound)

	syms, err := q.SymbolsInFile(ctx, "repo", "src/b.ts")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "b", syms[0].Name)

	files, err := q.Files(ctx, "repo")
	require.NoError(t, err)
	assert.Len(t, files, 4)
	assert.Equal(t, "src/__tests__/a.test.ts", files[0].Path)

	edges, err := q.Edges(ctx, "repo", "src/c.ts")
	require.NoError(t, err)
	for _, e := range edges {
		assert.True(t, e.FromPath == "src/c.ts" || e.ToPath == "src/c.ts")
	}
	assert.NotEmpty(t, edges)
}

func TestQuery_SearchErrors(t *testing.T) {
	q := NewQueryBuilder(nil, nil)
	_, err := q.Search(context.Background(), "repo", " ", 5)
	assert.ErrorIs(t, err, search.ErrEmptyQuery)
	_, err = q.Search(context.Background(), "repo", "x", 5)
	assert.Error(t, err)
}

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"src/a.test.ts", true},
		{"src/a.spec.tsx", true},
		{"src/__tests__/a.ts", true},
		{"test/helpers.js", true},
		{"src/testing.ts", false},
		{"src/contest/a.ts", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTestFile(tt.path), tt.path)
	}
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, Reverse, d)
	d, err = ParseDirection("FORWARD")
	require.NoError(t, err)
	assert.Equal(t, Forward, d)
	_, err = ParseDirection("up")
	assert.ErrorIs(t, err, ErrInvalidDirection)
}
