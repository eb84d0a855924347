package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CommitBatch writes all buffered Pass 1 rows in a single transaction and
// returns the fakeToReal ID mapping for files and symbols.
//
// For every buffered file:
//  1. the file row is upserted by (repository_id, path), keeping its ID;
//  2. its symbols are upserted by (file_id, name, kind, line_start) and
//     symbols no longer present are deleted, which cascades to their edges;
//  3. its references are deleted and re-inserted;
//  4. the file is recorded in run_files when the batch carries a run ID.
func (s *Store) CommitBatch(ctx context.Context, batch *Batch) (map[int64]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("commit batch: begin: %w", classifyError(err))
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64, len(batch.Files)+len(batch.Symbols))

	symbolsByFile := make(map[int64][]Symbol)
	for _, sym := range batch.Symbols {
		symbolsByFile[sym.FileID] = append(symbolsByFile[sym.FileID], sym)
	}
	refsByFile := make(map[int64][]Reference)
	for _, ref := range batch.References {
		refsByFile[ref.FileID] = append(refsByFile[ref.FileID], ref)
	}

	for _, f := range batch.Files {
		realFileID, err := upsertFileTx(ctx, tx, &f)
		if err != nil {
			return nil, fmt.Errorf("commit batch: file %q: %w", f.Path, classifyError(err))
		}
		fakeToReal[f.ID] = realFileID

		if err := replaceSymbolsTx(ctx, tx, realFileID, symbolsByFile[f.ID], fakeToReal); err != nil {
			return nil, fmt.Errorf("commit batch: symbols of %q: %w", f.Path, classifyError(err))
		}
		if err := replaceReferencesTx(ctx, tx, realFileID, refsByFile[f.ID]); err != nil {
			return nil, fmt.Errorf("commit batch: references of %q: %w", f.Path, classifyError(err))
		}
		if batch.RunID != "" {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO run_files (run_id, file_id) VALUES (?, ?)",
				batch.RunID, realFileID,
			); err != nil {
				return nil, fmt.Errorf("commit batch: run file %q: %w", f.Path, classifyError(err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: commit: %w", classifyError(err))
	}
	return fakeToReal, nil
}

// --- Transaction-scoped helpers ---

func upsertFileTx(ctx context.Context, tx *sql.Tx, f *File) (int64, error) {
	indexedAt := f.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now().UTC()
	}
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO files (repository_id, path, content, language, size, content_hash, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (repository_id, path) DO UPDATE SET
		   content = excluded.content,
		   language = excluded.language,
		   size = excluded.size,
		   content_hash = excluded.content_hash,
		   indexed_at = excluded.indexed_at
		 RETURNING id`,
		f.RepositoryID, f.Path, f.Content, f.Language, f.Size, f.ContentHash, indexedAt,
	).Scan(&id)
	return id, err
}

func replaceSymbolsTx(ctx context.Context, tx *sql.Tx, fileID int64, syms []Symbol, fakeToReal map[int64]int64) error {
	existing, err := idsTx(ctx, tx, "SELECT id FROM symbols WHERE file_id = ?", fileID)
	if err != nil {
		return err
	}

	kept := make(map[int64]bool, len(syms))
	for _, sym := range syms {
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO symbols (repository_id, file_id, name, kind, line_start, line_end,
			   column_start, column_end, signature, documentation, is_exported, metadata)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (file_id, name, kind, line_start) DO UPDATE SET
			   line_end = excluded.line_end,
			   column_start = excluded.column_start,
			   column_end = excluded.column_end,
			   signature = excluded.signature,
			   documentation = excluded.documentation,
			   is_exported = excluded.is_exported,
			   metadata = excluded.metadata
			 RETURNING id`,
			sym.RepositoryID, fileID, sym.Name, sym.Kind, sym.LineStart, sym.LineEnd,
			sym.ColumnStart, sym.ColumnEnd, sym.Signature, sym.Documentation,
			boolToInt(sym.IsExported), marshalMetadata(sym.Metadata),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("symbol %q: %w", sym.Name, err)
		}
		kept[id] = true
		fakeToReal[sym.ID] = id
	}

	var stale []int64
	for _, id := range existing {
		if !kept[id] {
			stale = append(stale, id)
		}
	}
	for _, chunk := range chunkInt64s(stale, maxInClause) {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM symbols WHERE id IN ("+placeholderList(len(chunk))+")",
			int64sToArgs(chunk)...,
		); err != nil {
			return fmt.Errorf("delete stale symbols: %w", err)
		}
	}
	return nil
}

func replaceReferencesTx(ctx context.Context, tx *sql.Tx, fileID int64, refs []Reference) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM references_ WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("delete references: %w", err)
	}
	if len(refs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO references_ (repository_id, file_id, reference_type, target_name,
		   line_number, column_number, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare reference insert: %w", err)
	}
	defer stmt.Close()
	for _, ref := range refs {
		if _, err := stmt.ExecContext(ctx,
			ref.RepositoryID, fileID, ref.ReferenceType, ref.TargetName,
			ref.LineNumber, ref.ColumnNumber, marshalMetadata(ref.Metadata),
		); err != nil {
			return fmt.Errorf("reference %q: %w", ref.TargetName, err)
		}
	}
	return nil
}

func idsTx(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
