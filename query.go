package codegraph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jward/codegraph/internal/metrics"
	"github.com/jward/codegraph/internal/search"
	"github.com/jward/codegraph/internal/store"
)

// DefaultSearchLimit caps search results when no limit is given.
const DefaultSearchLimit = 20

// QueryBuilder is the read API over an indexed repository.
type QueryBuilder struct {
	store DataStore
	index SearchIndex
}

// NewQueryBuilder creates a QueryBuilder. idx may be nil, in which case
// Search returns an error.
func NewQueryBuilder(s DataStore, idx SearchIndex) *QueryBuilder {
	return &QueryBuilder{store: s, index: idx}
}

// Search runs a full-text query over file content and symbol names,
// signatures and documentation of one repository.
func (q *QueryBuilder) Search(ctx context.Context, repoID, term string, limit int) ([]SearchHit, error) {
	defer metrics.ObserveQuery("search", time.Now())
	if strings.TrimSpace(term) == "" {
		return nil, search.ErrEmptyQuery
	}
	if q.index == nil {
		return nil, fmt.Errorf("search: no search index configured")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	hits, err := q.index.Search(ctx, repoID, term, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return hits, nil
}

// FileByPath returns the file at path, or ErrTargetNotFound.
func (q *QueryBuilder) FileByPath(ctx context.Context, repoID, path string) (*File, error) {
	f, err := q.store.FileByPath(ctx, repoID, path)
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, path)
	}
	return f, nil
}

// Files returns every file of the repository in path order. Content is not
// loaded.
func (q *QueryBuilder) Files(ctx context.Context, repoID string) ([]*File, error) {
	files, err := q.store.FilesByRepository(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// SymbolsInFile returns the symbols declared in path.
func (q *QueryBuilder) SymbolsInFile(ctx context.Context, repoID, path string) ([]*Symbol, error) {
	f, err := q.FileByPath(ctx, repoID, path)
	if err != nil {
		return nil, err
	}
	syms, err := q.store.SymbolsByFile(ctx, f.ID)
	if err != nil {
		return nil, fmt.Errorf("symbols in file: %w", err)
	}
	return syms, nil
}

// EdgeResult is an edge with its endpoints expressed as paths and names.
type EdgeResult struct {
	Type       string         `json:"type"`
	FromPath   string         `json:"from_path"`
	FromSymbol string         `json:"from_symbol,omitempty"`
	ToPath     string         `json:"to_path"`
	ToSymbol   string         `json:"to_symbol,omitempty"`
	Metadata   store.Metadata `json:"metadata,omitempty"`
}

// Edges returns the edges touching path, or every edge of the repository
// when path is empty.
func (q *QueryBuilder) Edges(ctx context.Context, repoID, path string) ([]EdgeResult, error) {
	g, err := q.loadGraph(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("edges: %w", err)
	}
	var fileID int64
	if path != "" {
		id, ok := g.fileByPath[path]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, path)
		}
		fileID = id
	}

	var out []EdgeResult
	for _, e := range g.edges {
		if fileID != 0 && e.FromFileID != fileID && e.ToFileID != fileID {
			continue
		}
		r := EdgeResult{
			Type:     e.DependencyType,
			FromPath: g.paths[e.FromFileID],
			ToPath:   g.paths[e.ToFileID],
			Metadata: e.Metadata,
		}
		if e.FromSymbolID != nil {
			r.FromSymbol = g.symbolNames[*e.FromSymbolID]
		}
		if e.ToSymbolID != nil {
			r.ToSymbol = g.symbolNames[*e.ToSymbolID]
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.FromPath != b.FromPath {
			return a.FromPath < b.FromPath
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.ToPath != b.ToPath {
			return a.ToPath < b.ToPath
		}
		return a.ToSymbol < b.ToSymbol
	})
	return out, nil
}
