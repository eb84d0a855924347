package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// --- Files ---

const fileColumns = "id, repository_id, path, language, size, content_hash, indexed_at"

func scanFile(sc scanner) (*File, error) {
	f := &File{}
	if err := sc.Scan(&f.ID, &f.RepositoryID, &f.Path, &f.Language, &f.Size, &f.ContentHash, &f.IndexedAt); err != nil {
		return nil, err
	}
	return f, nil
}

// FileByPath returns the file (including content) at path in the
// repository, or nil if it is not indexed.
func (s *Store) FileByPath(ctx context.Context, repoID, path string) (*File, error) {
	f := &File{}
	err := s.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+", content FROM files WHERE repository_id = ? AND path = ?",
		repoID, path,
	).Scan(&f.ID, &f.RepositoryID, &f.Path, &f.Language, &f.Size, &f.ContentHash, &f.IndexedAt, &f.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// FilesByRepository returns every file of the repository ordered by path.
// Content is not loaded.
func (s *Store) FilesByRepository(ctx context.Context, repoID string) ([]*File, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE repository_id = ? ORDER BY path", repoID)
	if err != nil {
		return nil, fmt.Errorf("files by repository: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("files by repository: scan: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteFilesNotIn removes every file of the repository whose path is not in
// keep, cascading to its symbols, references and edges. It returns the
// deleted files.
func (s *Store) DeleteFilesNotIn(ctx context.Context, repoID string, keep []string) ([]*File, error) {
	keepSet := make(map[string]bool, len(keep))
	for _, p := range keep {
		keepSet[p] = true
	}
	files, err := s.FilesByRepository(ctx, repoID)
	if err != nil {
		return nil, err
	}
	var doomed []*File
	var ids []int64
	for _, f := range files {
		if !keepSet[f.Path] {
			doomed = append(doomed, f)
			ids = append(ids, f.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("delete files: begin: %w", classifyError(err))
	}
	defer tx.Rollback()
	for _, chunk := range chunkInt64s(ids, maxInClause) {
		args := append([]any{repoID}, int64sToArgs(chunk)...)
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM files WHERE repository_id = ? AND id IN ("+placeholderList(len(chunk))+")",
			args...,
		); err != nil {
			return nil, fmt.Errorf("delete files: %w", classifyError(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("delete files: commit: %w", classifyError(err))
	}
	return doomed, nil
}

// --- Symbols ---

const symbolColumns = `id, repository_id, file_id, name, kind, line_start, line_end,
  column_start, column_end, signature, documentation, is_exported, metadata`

func scanSymbol(sc scanner) (*Symbol, error) {
	sym := &Symbol{}
	var exported int
	var meta string
	if err := sc.Scan(&sym.ID, &sym.RepositoryID, &sym.FileID, &sym.Name, &sym.Kind,
		&sym.LineStart, &sym.LineEnd, &sym.ColumnStart, &sym.ColumnEnd,
		&sym.Signature, &sym.Documentation, &exported, &meta); err != nil {
		return nil, err
	}
	sym.IsExported = exported != 0
	m, err := unmarshalMetadata(meta)
	if err != nil {
		return nil, fmt.Errorf("symbol %d: %w", sym.ID, err)
	}
	sym.Metadata = m
	return sym, nil
}

func (s *Store) querySymbols(ctx context.Context, query string, args ...any) ([]*Symbol, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var syms []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		syms = append(syms, sym)
	}
	return syms, rows.Err()
}

// SymbolsByRepository returns every symbol of the repository ordered by
// file and position.
func (s *Store) SymbolsByRepository(ctx context.Context, repoID string) ([]*Symbol, error) {
	syms, err := s.querySymbols(ctx,
		"SELECT "+symbolColumns+" FROM symbols WHERE repository_id = ? ORDER BY file_id, line_start, column_start, id",
		repoID)
	if err != nil {
		return nil, fmt.Errorf("symbols by repository: %w", err)
	}
	return syms, nil
}

// SymbolsByFile returns the symbols of one file in source order.
func (s *Store) SymbolsByFile(ctx context.Context, fileID int64) ([]*Symbol, error) {
	syms, err := s.querySymbols(ctx,
		"SELECT "+symbolColumns+" FROM symbols WHERE file_id = ? ORDER BY line_start, column_start, id",
		fileID)
	if err != nil {
		return nil, fmt.Errorf("symbols by file: %w", err)
	}
	return syms, nil
}

// SymbolByID returns a symbol or nil if it does not exist.
func (s *Store) SymbolByID(ctx context.Context, id int64) (*Symbol, error) {
	sym, err := scanSymbol(s.db.QueryRowContext(ctx,
		"SELECT "+symbolColumns+" FROM symbols WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("symbol by id: %w", err)
	}
	return sym, nil
}

// --- References ---

const referenceColumns = `id, repository_id, file_id, reference_type, target_name,
  line_number, column_number, metadata`

func scanReference(sc scanner) (*Reference, error) {
	ref := &Reference{}
	var meta string
	if err := sc.Scan(&ref.ID, &ref.RepositoryID, &ref.FileID, &ref.ReferenceType,
		&ref.TargetName, &ref.LineNumber, &ref.ColumnNumber, &meta); err != nil {
		return nil, err
	}
	m, err := unmarshalMetadata(meta)
	if err != nil {
		return nil, fmt.Errorf("reference %d: %w", ref.ID, err)
	}
	ref.Metadata = m
	return ref, nil
}

// ReferencesByFiles returns the references owned by the given files, ordered
// by file and position.
func (s *Store) ReferencesByFiles(ctx context.Context, repoID string, fileIDs []int64) ([]*Reference, error) {
	var refs []*Reference
	for _, chunk := range chunkInt64s(fileIDs, maxInClause) {
		args := append([]any{repoID}, int64sToArgs(chunk)...)
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+referenceColumns+" FROM references_ WHERE repository_id = ? AND file_id IN ("+
				placeholderList(len(chunk))+") ORDER BY file_id, line_number, column_number, id",
			args...)
		if err != nil {
			return nil, fmt.Errorf("references by files: %w", err)
		}
		for rows.Next() {
			ref, err := scanReference(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("references by files: scan: %w", err)
			}
			refs = append(refs, ref)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("references by files: rows: %w", err)
		}
	}
	return refs, nil
}
