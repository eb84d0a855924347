package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReplaceEdges deletes every edge of the repository that originates in
// fromFileIDs and inserts edges in its place, all inside one transaction.
// Before writing, each endpoint is checked against the repository; an
// endpoint owned by another repository aborts the transaction with a
// *TenantMismatchError.
func (s *Store) ReplaceEdges(ctx context.Context, repoID string, fromFileIDs []int64, edges []*Edge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace edges: begin: %w", classifyError(err))
	}
	defer tx.Rollback()

	if err := checkTenantTx(ctx, tx, repoID, edges); err != nil {
		return err
	}

	for _, chunk := range chunkInt64s(fromFileIDs, maxInClause) {
		args := append([]any{repoID}, int64sToArgs(chunk)...)
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM edges WHERE repository_id = ? AND from_file_id IN ("+placeholderList(len(chunk))+")",
			args...,
		); err != nil {
			return fmt.Errorf("replace edges: delete: %w", classifyError(err))
		}
	}

	if len(edges) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO edges (repository_id, from_file_id, from_symbol_id, to_file_id,
			   to_symbol_id, dependency_type, metadata)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("replace edges: prepare: %w", classifyError(err))
		}
		defer stmt.Close()
		for _, e := range edges {
			if _, err := stmt.ExecContext(ctx,
				repoID, e.FromFileID, e.FromSymbolID, e.ToFileID, e.ToSymbolID,
				e.DependencyType, marshalMetadata(e.Metadata),
			); err != nil {
				return fmt.Errorf("replace edges: insert %s %d->%d: %w",
					e.DependencyType, e.FromFileID, e.ToFileID, classifyError(err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace edges: commit: %w", classifyError(err))
	}
	return nil
}

// checkTenantTx verifies that every file and symbol endpoint of edges is
// owned by repoID.
func checkTenantTx(ctx context.Context, tx *sql.Tx, repoID string, edges []*Edge) error {
	fileIDs := make(map[int64]bool)
	symbolIDs := make(map[int64]bool)
	for _, e := range edges {
		if e.RepositoryID != "" && e.RepositoryID != repoID {
			return &TenantMismatchError{RepositoryID: repoID, OtherRepositoryID: e.RepositoryID, Table: "edges", ID: e.ID}
		}
		fileIDs[e.FromFileID] = true
		fileIDs[e.ToFileID] = true
		if e.FromSymbolID != nil {
			symbolIDs[*e.FromSymbolID] = true
		}
		if e.ToSymbolID != nil {
			symbolIDs[*e.ToSymbolID] = true
		}
	}
	for _, t := range []struct {
		table string
		ids   map[int64]bool
	}{{"files", fileIDs}, {"symbols", symbolIDs}} {
		ids := make([]int64, 0, len(t.ids))
		for id := range t.ids {
			ids = append(ids, id)
		}
		for _, chunk := range chunkInt64s(ids, maxInClause) {
			args := append([]any{repoID}, int64sToArgs(chunk)...)
			var id int64
			var other string
			err := tx.QueryRowContext(ctx,
				"SELECT id, repository_id FROM "+t.table+" WHERE repository_id != ? AND id IN ("+
					placeholderList(len(chunk))+") LIMIT 1",
				args...,
			).Scan(&id, &other)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return fmt.Errorf("replace edges: tenant check: %w", classifyError(err))
			}
			return &TenantMismatchError{RepositoryID: repoID, OtherRepositoryID: other, Table: t.table, ID: id}
		}
	}
	return nil
}

const edgeColumns = `id, repository_id, from_file_id, from_symbol_id, to_file_id,
  to_symbol_id, dependency_type, metadata`

func scanEdge(sc scanner) (*Edge, error) {
	e := &Edge{}
	var fromSym, toSym sql.NullInt64
	var meta string
	if err := sc.Scan(&e.ID, &e.RepositoryID, &e.FromFileID, &fromSym, &e.ToFileID,
		&toSym, &e.DependencyType, &meta); err != nil {
		return nil, err
	}
	if fromSym.Valid {
		v := fromSym.Int64
		e.FromSymbolID = &v
	}
	if toSym.Valid {
		v := toSym.Int64
		e.ToSymbolID = &v
	}
	m, err := unmarshalMetadata(meta)
	if err != nil {
		return nil, fmt.Errorf("edge %d: %w", e.ID, err)
	}
	e.Metadata = m
	return e, nil
}

func (s *Store) queryEdges(ctx context.Context, query string, args ...any) ([]*Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []*Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// EdgesByRepository returns every edge of the repository in ID order.
func (s *Store) EdgesByRepository(ctx context.Context, repoID string) ([]*Edge, error) {
	edges, err := s.queryEdges(ctx,
		"SELECT "+edgeColumns+" FROM edges WHERE repository_id = ? ORDER BY id", repoID)
	if err != nil {
		return nil, fmt.Errorf("edges by repository: %w", err)
	}
	return edges, nil
}

// EdgesFromFile returns the edges originating in one file.
func (s *Store) EdgesFromFile(ctx context.Context, fileID int64) ([]*Edge, error) {
	edges, err := s.queryEdges(ctx,
		"SELECT "+edgeColumns+" FROM edges WHERE from_file_id = ? ORDER BY id", fileID)
	if err != nil {
		return nil, fmt.Errorf("edges from file: %w", err)
	}
	return edges, nil
}

// CrossTenantEdgeCount returns the number of edges whose endpoints belong to
// a repository other than the edge's own. It is always 0 for a healthy store.
func (s *Store) CrossTenantEdgeCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM edges e
		JOIN files ff ON ff.id = e.from_file_id
		JOIN files tf ON tf.id = e.to_file_id
		LEFT JOIN symbols fs ON fs.id = e.from_symbol_id
		LEFT JOIN symbols ts ON ts.id = e.to_symbol_id
		WHERE ff.repository_id != e.repository_id
		   OR tf.repository_id != e.repository_id
		   OR (fs.id IS NOT NULL AND fs.repository_id != e.repository_id)
		   OR (ts.id IS NOT NULL AND ts.repository_id != e.repository_id)`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("cross tenant edge count: %w", err)
	}
	return n, nil
}
