package codegraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/codegraph/internal/search"
)

func newTestQueryBuilder(t *testing.T) *QueryBuilder {
	t.Helper()
	idx, err := search.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	e, _ := newTestEngine(t, WithSearchIndex(idx))
	ctx := context.Background()
	_, err = e.IndexFiles(ctx, Repository{ID: "repo"}, src(
		"src/math.ts", "export function add(a: number, b: number): number {\n  return a + b;\n}\n",
		"src/main.ts", "import { add } from './math';\nexport function run(): number {\n  return add(1, 2);\n}\n",
	))
	require.NoError(t, err)
	_, err = e.IndexFiles(ctx, Repository{ID: "other"}, src(
		"src/math.ts", "export function add(a: number, b: number): number {\n  return a - b;\n}\n",
	))
	require.NoError(t, err)
	return e.Query()
}

func TestEdges_AllAndByPath(t *testing.T) {
	ctx := context.Background()
	q := newTestQueryBuilder(t)

	all, err := q.Edges(ctx, "repo", "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	imp := edgesOfType(all, "file_import")
	require.Len(t, imp, 1)
	assert.Equal(t, "src/main.ts", imp[0].FromPath)
	assert.Equal(t, "src/math.ts", imp[0].ToPath)
	assert.Empty(t, imp[0].FromSymbol)
	assert.Equal(t, "./math", imp[0].Metadata.String("import_source"))

	call := edgesOfType(all, "symbol_call")
	require.Len(t, call, 1)
	assert.Equal(t, "run", call[0].FromSymbol)
	assert.Equal(t, "add", call[0].ToSymbol)

	// file_import sorts before symbol_call for the same source file.
	assert.Equal(t, "file_import", all[0].Type)

	byPath, err := q.Edges(ctx, "repo", "src/math.ts")
	require.NoError(t, err)
	assert.Equal(t, all, byPath, "every edge touches math.ts")

	_, err = q.Edges(ctx, "repo", "src/missing.ts")
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestEdges_TenantIsolation(t *testing.T) {
	q := newTestQueryBuilder(t)
	edges, err := q.Edges(context.Background(), "other", "")
	require.NoError(t, err)
	assert.Empty(t, edges)

	files, err := q.Files(context.Background(), "other")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "other", files[0].RepositoryID)
}

func TestSearch_ScopedToRepository(t *testing.T) {
	ctx := context.Background()
	q := newTestQueryBuilder(t)

	hits, err := q.Search(ctx, "repo", "add", 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Contains(t, []string{"src/math.ts", "src/main.ts"}, h.Path)
	}

	var sawSymbol bool
	for _, h := range hits {
		if h.Kind == search.KindSymbol && h.Name == "add" {
			sawSymbol = true
			assert.Equal(t, "src/math.ts", h.Path)
			assert.Equal(t, 1, h.Line)
		}
	}
	assert.True(t, sawSymbol)

	other, err := q.Search(ctx, "other", "run", 0)
	require.NoError(t, err)
	assert.Empty(t, other)

	one, err := q.Search(ctx, "repo", "add", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestSymbolsInFile_MissingFile(t *testing.T) {
	q := newTestQueryBuilder(t)
	_, err := q.SymbolsInFile(context.Background(), "repo", "src/nope.ts")
	assert.ErrorIs(t, err, ErrTargetNotFound)
}
