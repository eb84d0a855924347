// Package search maintains a full-text index over file content and symbol
// declarations, backed by bleve.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/jward/codegraph/internal/store"
)

// Document kinds.
const (
	KindFile   = "file"
	KindSymbol = "symbol"
)

var (
	// ErrEmptyQuery is returned for a blank search term.
	ErrEmptyQuery = errors.New("search term is empty")
	// ErrIndexClosed is returned after Close.
	ErrIndexClosed = errors.New("search index is closed")
)

// deleteScanSize is the page size used when collecting documents to delete.
const deleteScanSize = 500

// SearchIndex is the text index the indexing pipeline feeds and the query
// engine reads.
type SearchIndex interface {
	// IndexFile replaces every document of f.Path with the file itself and
	// one document per symbol.
	IndexFile(ctx context.Context, f *store.File, syms []store.Symbol) error
	DeleteFile(ctx context.Context, repoID, path string) error
	Search(ctx context.Context, repoID, term string, limit int) ([]Hit, error)
	Close() error
}

// Hit is one ranked search result.
type Hit struct {
	ID         string   `json:"id"`
	Kind       string   `json:"kind"`
	Path       string   `json:"path"`
	Name       string   `json:"name,omitempty"`
	SymbolKind string   `json:"symbol_kind,omitempty"`
	Line       int      `json:"line,omitempty"`
	Score      float64  `json:"score"`
	Snippets   []string `json:"snippets,omitempty"`
}

// document is the indexed shape shared by files and symbols.
type document struct {
	RepositoryID  string `json:"repository_id"`
	Kind          string `json:"kind"`
	Path          string `json:"path"`
	Name          string `json:"name,omitempty"`
	SymbolKind    string `json:"symbol_kind,omitempty"`
	Signature     string `json:"signature,omitempty"`
	Documentation string `json:"documentation,omitempty"`
	Content       string `json:"content,omitempty"`
	Line          int    `json:"line"`
}

// Index is the bleve-backed SearchIndex.
type Index struct {
	idx bleve.Index
}

var _ SearchIndex = (*Index)(nil)

// Open opens the index at path, creating it if it does not exist. An empty
// path creates a memory-only index.
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(buildMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
		return &Index{idx: idx}, nil
	}
	idx, err := bleve.Open(path)
	if err == nil {
		return &Index{idx: idx}, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	idx, err = bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create index %s: %w", path, err)
	}
	return &Index{idx: idx}, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	keyword := func() *mapping.FieldMapping {
		fm := bleve.NewKeywordFieldMapping()
		fm.IncludeInAll = false
		return fm
	}
	text := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Store = true
		fm.IncludeTermVectors = true
		return fm
	}

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt("repository_id", keyword())
	doc.AddFieldMappingsAt("kind", keyword())
	doc.AddFieldMappingsAt("path", keyword())
	doc.AddFieldMappingsAt("symbol_kind", keyword())
	doc.AddFieldMappingsAt("name", text())
	doc.AddFieldMappingsAt("signature", text())
	doc.AddFieldMappingsAt("documentation", text())
	doc.AddFieldMappingsAt("content", text())
	line := bleve.NewNumericFieldMapping()
	line.IncludeInAll = false
	doc.AddFieldMappingsAt("line", line)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

func fileDocID(repoID, path string) string {
	return repoID + "\x00" + KindFile + "\x00" + path
}

func symbolDocID(repoID, path string, s store.Symbol) string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%s\x00%d", repoID, KindSymbol, path, s.Name, s.Kind, s.LineStart)
}

// IndexFile implements SearchIndex.
func (x *Index) IndexFile(ctx context.Context, f *store.File, syms []store.Symbol) error {
	if x.idx == nil {
		return ErrIndexClosed
	}
	stale, err := x.docIDsForPath(ctx, f.RepositoryID, f.Path)
	if err != nil {
		return err
	}

	batch := x.idx.NewBatch()
	for _, id := range stale {
		batch.Delete(id)
	}
	if err := batch.Index(fileDocID(f.RepositoryID, f.Path), document{
		RepositoryID: f.RepositoryID,
		Kind:         KindFile,
		Path:         f.Path,
		Content:      f.Content,
		Line:         1,
	}); err != nil {
		return fmt.Errorf("index file %s: %w", f.Path, err)
	}
	for _, s := range syms {
		if err := batch.Index(symbolDocID(f.RepositoryID, f.Path, s), document{
			RepositoryID:  f.RepositoryID,
			Kind:          KindSymbol,
			Path:          f.Path,
			Name:          s.Name,
			SymbolKind:    s.Kind,
			Signature:     s.Signature,
			Documentation: s.Documentation,
			Line:          s.LineStart,
		}); err != nil {
			return fmt.Errorf("index symbol %s in %s: %w", s.Name, f.Path, err)
		}
	}
	if err := x.idx.Batch(batch); err != nil {
		return fmt.Errorf("commit index batch for %s: %w", f.Path, err)
	}
	return nil
}

// DeleteFile implements SearchIndex.
func (x *Index) DeleteFile(ctx context.Context, repoID, path string) error {
	if x.idx == nil {
		return ErrIndexClosed
	}
	ids, err := x.docIDsForPath(ctx, repoID, path)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	batch := x.idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := x.idx.Batch(batch); err != nil {
		return fmt.Errorf("delete %s from index: %w", path, err)
	}
	return nil
}

func (x *Index) docIDsForPath(ctx context.Context, repoID, path string) ([]string, error) {
	q := bleve.NewConjunctionQuery(termQuery("repository_id", repoID), termQuery("path", path))
	var ids []string
	for from := 0; ; from += deleteScanSize {
		req := bleve.NewSearchRequestOptions(q, deleteScanSize, from, false)
		res, err := x.idx.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("find documents for %s: %w", path, err)
		}
		for _, h := range res.Hits {
			ids = append(ids, h.ID)
		}
		if len(res.Hits) < deleteScanSize {
			return ids, nil
		}
	}
}

func termQuery(field, value string) query.Query {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}

// Search runs term as a bleve query string restricted to repoID. Results
// carry highlighted fragments from the matched fields.
func (x *Index) Search(ctx context.Context, repoID, term string, limit int) ([]Hit, error) {
	if x.idx == nil {
		return nil, ErrIndexClosed
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 20
	}

	q := bleve.NewConjunctionQuery(bleve.NewQueryStringQuery(term), termQuery("repository_id", repoID))
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"kind", "path", "name", "symbol_kind", "line"}
	req.Highlight = bleve.NewHighlight()

	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{
			ID:         h.ID,
			Kind:       stringField(h.Fields, "kind"),
			Path:       stringField(h.Fields, "path"),
			Name:       stringField(h.Fields, "name"),
			SymbolKind: stringField(h.Fields, "symbol_kind"),
			Line:       intField(h.Fields, "line"),
			Score:      h.Score,
			Snippets:   snippets(h.Fragments),
		})
	}
	return hits, nil
}

// Close releases the index.
func (x *Index) Close() error {
	if x.idx == nil {
		return nil
	}
	err := x.idx.Close()
	x.idx = nil
	return err
}

func stringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func intField(fields map[string]interface{}, key string) int {
	if v, ok := fields[key].(float64); ok {
		return int(v)
	}
	return 0
}

// snippets flattens fragments in field-name order.
func snippets(fragments map[string][]string) []string {
	fields := make([]string, 0, len(fragments))
	for f := range fragments {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	var out []string
	for _, f := range fields {
		out = append(out, fragments[f]...)
	}
	return out
}
