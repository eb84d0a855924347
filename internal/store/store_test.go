package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

// commitFile commits one file with the given symbols and returns the real
// file ID plus the real symbol IDs in input order.
func commitFile(t *testing.T, s *Store, repoID, path string, syms ...Symbol) (int64, []int64) {
	t.Helper()
	b := NewBatch(repoID, "")
	f := &File{Path: path, Language: "typescript", Content: "// " + path, IndexedAt: time.Now()}
	fake := b.AddFile(f)
	var fakes []int64
	for i := range syms {
		syms[i].FileID = fake
		fakes = append(fakes, b.AddSymbol(&syms[i]))
	}
	m, err := s.CommitBatch(context.Background(), b)
	require.NoError(t, err)
	var real []int64
	for _, id := range fakes {
		real = append(real, m[id])
	}
	return m[fake], real
}

func fn(name string, line int) Symbol {
	return Symbol{Name: name, Kind: KindFunction, LineStart: line, LineEnd: line + 2, IsExported: true}
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"files", "symbols", "references_", "edges", "runs", "run_files"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

// =============================================================================
// Pass 1 commit
// =============================================================================

func TestCommitBatch_RemapsFakeIDs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	b := NewBatch("repo", "")
	fa := b.AddFile(&File{Path: "a.ts", Language: "typescript"})
	fb := b.AddFile(&File{Path: "b.ts", Language: "typescript"})
	sa := b.AddSymbol(&Symbol{FileID: fa, Name: "alpha", Kind: KindFunction, LineStart: 1, LineEnd: 3})
	b.AddReference(&Reference{FileID: fb, ReferenceType: RefImport, TargetName: "alpha", LineNumber: 1,
		Metadata: Metadata{"import_source": "./a"}})

	assert.Negative(t, fa)
	assert.Negative(t, sa)

	m, err := s.CommitBatch(ctx, b)
	require.NoError(t, err)
	require.Positive(t, m[fa])
	require.Positive(t, m[fb])
	require.Positive(t, m[sa])

	syms, err := s.SymbolsByFile(ctx, m[fa])
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, m[sa], syms[0].ID)
	assert.Equal(t, "repo", syms[0].RepositoryID)

	refs, err := s.ReferencesByFiles(ctx, "repo", []int64{m[fb]})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "./a", refs[0].Metadata.String("import_source"))
}

func TestCommitBatch_UpsertKeepsIDs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	fileID, symIDs := commitFile(t, s, "repo", "a.ts", fn("alpha", 1), fn("beta", 5))
	fileID2, symIDs2 := commitFile(t, s, "repo", "a.ts", fn("alpha", 1), fn("beta", 5))

	assert.Equal(t, fileID, fileID2)
	assert.Equal(t, symIDs, symIDs2)

	c, err := s.Counts(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, Counts{Files: 1, Symbols: 2}, c)
}

func TestCommitBatch_RemovesStaleSymbolsAndTheirEdges(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	aID, aSyms := commitFile(t, s, "repo", "a.ts", fn("alpha", 1), fn("beta", 5))
	bID, _ := commitFile(t, s, "repo", "b.ts")

	require.NoError(t, s.ReplaceEdges(ctx, "repo", []int64{bID}, []*Edge{
		{FromFileID: bID, ToFileID: aID, DependencyType: DepFileImport},
		{FromFileID: bID, ToFileID: aID, ToSymbolID: ptr(aSyms[1]), DependencyType: DepSymbolCall},
	}))

	// Re-index a.ts without beta.
	commitFile(t, s, "repo", "a.ts", fn("alpha", 1))

	sym, err := s.SymbolByID(ctx, aSyms[1])
	require.NoError(t, err)
	assert.Nil(t, sym)

	edges, err := s.EdgesByRepository(ctx, "repo")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, DepFileImport, edges[0].DependencyType)
}

func TestCommitBatch_ReplacesReferences(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	commit := func(names ...string) int64 {
		b := NewBatch("repo", "")
		fid := b.AddFile(&File{Path: "a.ts", Language: "typescript"})
		for i, n := range names {
			b.AddReference(&Reference{FileID: fid, ReferenceType: RefCall, TargetName: n, LineNumber: i + 1})
		}
		m, err := s.CommitBatch(ctx, b)
		require.NoError(t, err)
		return m[fid]
	}

	commit("x", "y", "z")
	id := commit("x")

	refs, err := s.ReferencesByFiles(ctx, "repo", []int64{id})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "x", refs[0].TargetName)
}

func TestCommitBatch_RecordsRunFiles(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, &Run{ID: "run-1", RepositoryID: "repo", State: "pending"}))
	b := NewBatch("repo", "run-1")
	fa := b.AddFile(&File{Path: "a.ts", Language: "typescript"})
	m, err := s.CommitBatch(ctx, b)
	require.NoError(t, err)

	ids, err := s.RunFileIDs(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{m[fa]}, ids)
}

func TestCommitBatch_SamePathDifferentRepositories(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	a, _ := commitFile(t, s, "repo-a", "index.ts")
	b, _ := commitFile(t, s, "repo-b", "index.ts")
	assert.NotEqual(t, a, b)
}

func TestDeleteFilesNotIn(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	commitFile(t, s, "repo", "a.ts", fn("alpha", 1))
	commitFile(t, s, "repo", "b.ts")
	commitFile(t, s, "other", "a.ts")

	deleted, err := s.DeleteFilesNotIn(ctx, "repo", []string{"b.ts"})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "a.ts", deleted[0].Path)

	c, err := s.Counts(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, Counts{Files: 1}, c)

	other, err := s.FileByPath(ctx, "other", "a.ts")
	require.NoError(t, err)
	assert.NotNil(t, other)
}

// =============================================================================
// Pass 2 edges
// =============================================================================

func TestReplaceEdges_OnlyTouchesGivenFiles(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := commitFile(t, s, "repo", "a.ts")
	b, _ := commitFile(t, s, "repo", "b.ts")
	c, _ := commitFile(t, s, "repo", "c.ts")

	require.NoError(t, s.ReplaceEdges(ctx, "repo", []int64{b, c}, []*Edge{
		{FromFileID: b, ToFileID: a, DependencyType: DepFileImport},
		{FromFileID: c, ToFileID: b, DependencyType: DepFileImport},
	}))
	require.NoError(t, s.ReplaceEdges(ctx, "repo", []int64{b}, nil))

	edges, err := s.EdgesByRepository(ctx, "repo")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, c, edges[0].FromFileID)

	deps, err := s.DependentFileIDs(ctx, "repo", []int64{b})
	require.NoError(t, err)
	assert.Equal(t, []int64{c}, deps)
}

func TestReplaceEdges_TenantMismatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := commitFile(t, s, "repo-a", "a.ts")
	_, otherSyms := commitFile(t, s, "repo-b", "b.ts", fn("beta", 1))
	b, _ := commitFile(t, s, "repo-b", "c.ts")

	err := s.ReplaceEdges(ctx, "repo-a", []int64{a}, []*Edge{
		{FromFileID: a, ToFileID: b, DependencyType: DepFileImport},
	})
	var tm *TenantMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, "files", tm.Table)
	assert.Equal(t, "repo-b", tm.OtherRepositoryID)

	err = s.ReplaceEdges(ctx, "repo-a", []int64{a}, []*Edge{
		{FromFileID: a, ToFileID: a, ToSymbolID: ptr(otherSyms[0]), DependencyType: DepSymbolCall},
	})
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, "symbols", tm.Table)

	n, err := s.CrossTenantEdgeCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReplaceEdges_DuplicateIsStorageConflict(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := commitFile(t, s, "repo", "a.ts")
	b, _ := commitFile(t, s, "repo", "b.ts")
	e := &Edge{FromFileID: b, ToFileID: a, DependencyType: DepFileImport}

	err := s.ReplaceEdges(ctx, "repo", []int64{b}, []*Edge{e, e})
	require.ErrorIs(t, err, ErrStorageConflict)

	edges, err := s.EdgesByRepository(ctx, "repo")
	require.NoError(t, err)
	assert.Empty(t, edges, "failed transaction must not leave partial edges")
}

func TestReplaceEdges_DanglingEndpointRejected(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := commitFile(t, s, "repo", "a.ts")
	err := s.ReplaceEdges(ctx, "repo", []int64{a}, []*Edge{
		{FromFileID: a, ToFileID: a, ToSymbolID: ptr(int64(9999)), DependencyType: DepSymbolCall},
	})
	require.Error(t, err)
}

func TestEdgeMetadataRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := commitFile(t, s, "repo", "a.ts")
	b, _ := commitFile(t, s, "repo", "b.ts")
	require.NoError(t, s.ReplaceEdges(ctx, "repo", []int64{b}, []*Edge{
		{FromFileID: b, ToFileID: a, DependencyType: DepFileImport, Metadata: Metadata{"import_source": "./a"}},
	}))

	edges, err := s.EdgesFromFile(ctx, b)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "./a", edges[0].Metadata.String("import_source"))
	assert.Nil(t, edges[0].ToSymbolID)
}

func TestCorruptMetadataIsReported(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := commitFile(t, s, "repo", "a.ts", fn("alpha", 1))
	b, _ := commitFile(t, s, "repo", "b.ts")
	require.NoError(t, s.ReplaceEdges(ctx, "repo", []int64{b}, []*Edge{
		{FromFileID: b, ToFileID: a, DependencyType: DepFileImport},
	}))

	_, err := s.DB().Exec("UPDATE symbols SET metadata = '{not json' WHERE file_id = ?", a)
	require.NoError(t, err)
	_, err = s.SymbolsByFile(ctx, a)
	assert.ErrorContains(t, err, "decode metadata")

	_, err = s.DB().Exec("UPDATE edges SET metadata = '[1,' WHERE from_file_id = ?", b)
	require.NoError(t, err)
	_, err = s.EdgesFromFile(ctx, b)
	assert.ErrorContains(t, err, "decode metadata")

	require.NoError(t, s.CreateRun(ctx, &Run{ID: "run-x", RepositoryID: "repo", State: "pending"}))
	_, err = s.DB().Exec("UPDATE runs SET warnings = 'oops' WHERE id = 'run-x'")
	require.NoError(t, err)
	_, err = s.RunByID(ctx, "run-x")
	assert.ErrorContains(t, err, "decode string list")
}

// =============================================================================
// Runs
// =============================================================================

func TestRuns_CreateUpdateGet(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	r := &Run{ID: "run-1", RepositoryID: "repo", State: "pending"}
	require.NoError(t, s.CreateRun(ctx, r))

	r.State = "failed"
	r.LastPass = 1
	r.Retryable = true
	r.Error = "boom"
	r.Warnings = []string{"ambiguous: x"}
	r.FailedFiles = []string{"bad.ts"}
	now := time.Now().UTC()
	r.FinishedAt = &now
	require.NoError(t, s.UpdateRun(ctx, r))

	got, err := s.RunByID(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "failed", got.State)
	assert.Equal(t, 1, got.LastPass)
	assert.True(t, got.Retryable)
	assert.Equal(t, []string{"ambiguous: x"}, got.Warnings)
	assert.Equal(t, []string{"bad.ts"}, got.FailedFiles)
	assert.NotNil(t, got.FinishedAt)

	missing, err := s.RunByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	runs, err := s.RunsByRepository(ctx, "repo", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

// =============================================================================
// Helpers
// =============================================================================

func TestClassifyError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, classifyError(nil))

	plain := errors.New("plain")
	assert.Equal(t, plain, classifyError(plain))

	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	assert.ErrorIs(t, classifyError(fmt.Errorf("wrap: %w", busy)), ErrStorageConflict)

	unique := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}
	assert.ErrorIs(t, classifyError(unique), ErrStorageConflict)

	fk := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}
	assert.NotErrorIs(t, classifyError(fk), ErrStorageConflict)
}

func TestChunkInt64s(t *testing.T) {
	t.Parallel()
	assert.Nil(t, chunkInt64s(nil, 2))
	assert.Equal(t, [][]int64{{1, 2}, {3}}, chunkInt64s([]int64{1, 2, 3}, 2))
}

func TestContentHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ContentHash([]byte("x")), ContentHash([]byte("x")))
	assert.NotEqual(t, ContentHash([]byte("x")), ContentHash([]byte("y")))
	assert.Len(t, ContentHash(nil), 64)
}
