package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = `id, repository_id, state, last_pass, error, retryable, full_run,
  files_total, files_indexed, files_failed, edges_written, references_dropped,
  warnings, failed_files, started_at, updated_at, finished_at`

// CreateRun inserts a new run record.
func (s *Store) CreateRun(ctx context.Context, r *Run) error {
	now := time.Now().UTC()
	if r.StartedAt.IsZero() {
		r.StartedAt = now
	}
	r.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runArgs(r)...,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", classifyError(err))
	}
	return nil
}

// UpdateRun overwrites the mutable columns of a run record.
func (s *Store) UpdateRun(ctx context.Context, r *Run) error {
	r.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, last_pass = ?, error = ?, retryable = ?, full_run = ?,
		   files_total = ?, files_indexed = ?, files_failed = ?, edges_written = ?,
		   references_dropped = ?, warnings = ?, failed_files = ?, updated_at = ?, finished_at = ?
		 WHERE id = ?`,
		r.State, r.LastPass, r.Error, boolToInt(r.Retryable), boolToInt(r.Full),
		r.FilesTotal, r.FilesIndexed, r.FilesFailed, r.EdgesWritten,
		r.ReferencesDropped, marshalStrings(r.Warnings), marshalStrings(r.FailedFiles),
		r.UpdatedAt, r.FinishedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", classifyError(err))
	}
	return nil
}

func runArgs(r *Run) []any {
	return []any{
		r.ID, r.RepositoryID, r.State, r.LastPass, r.Error, boolToInt(r.Retryable), boolToInt(r.Full),
		r.FilesTotal, r.FilesIndexed, r.FilesFailed, r.EdgesWritten, r.ReferencesDropped,
		marshalStrings(r.Warnings), marshalStrings(r.FailedFiles), r.StartedAt, r.UpdatedAt, r.FinishedAt,
	}
}

func scanRun(sc scanner) (*Run, error) {
	r := &Run{}
	var retryable, full int
	var warnings, failed string
	var finished sql.NullTime
	if err := sc.Scan(&r.ID, &r.RepositoryID, &r.State, &r.LastPass, &r.Error, &retryable, &full,
		&r.FilesTotal, &r.FilesIndexed, &r.FilesFailed, &r.EdgesWritten, &r.ReferencesDropped,
		&warnings, &failed, &r.StartedAt, &r.UpdatedAt, &finished); err != nil {
		return nil, err
	}
	r.Retryable = retryable != 0
	r.Full = full != 0
	var err error
	if r.Warnings, err = unmarshalStrings(warnings); err != nil {
		return nil, fmt.Errorf("run %s warnings: %w", r.ID, err)
	}
	if r.FailedFiles, err = unmarshalStrings(failed); err != nil {
		return nil, fmt.Errorf("run %s failed files: %w", r.ID, err)
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

// RunByID returns a run record or nil if it does not exist.
func (s *Store) RunByID(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run by id: %w", err)
	}
	return r, nil
}

// RunsByRepository returns the most recent runs of a repository, newest first.
func (s *Store) RunsByRepository(ctx context.Context, repoID string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE repository_id = ? ORDER BY started_at DESC, id LIMIT ?",
		repoID, limit)
	if err != nil {
		return nil, fmt.Errorf("runs by repository: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("runs by repository: scan: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunFileIDs returns the files committed by a run's Pass 1.
func (s *Store) RunFileIDs(ctx context.Context, runID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT file_id FROM run_files WHERE run_id = ? ORDER BY file_id", runID)
	if err != nil {
		return nil, fmt.Errorf("run files: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("run files: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
