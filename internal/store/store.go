package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for the code graph.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode and foreign keys enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
-- Extraction tables

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  repository_id   TEXT NOT NULL,
  path            TEXT NOT NULL,
  content         TEXT NOT NULL DEFAULT '',
  language        TEXT NOT NULL,
  size            INTEGER NOT NULL DEFAULT 0,
  content_hash    TEXT NOT NULL DEFAULT '',
  indexed_at      TIMESTAMP NOT NULL,
  UNIQUE (repository_id, path)
);

CREATE TABLE IF NOT EXISTS symbols (
  id              INTEGER PRIMARY KEY,
  repository_id   TEXT NOT NULL,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  line_start      INTEGER NOT NULL,
  line_end        INTEGER NOT NULL,
  column_start    INTEGER NOT NULL DEFAULT 0,
  column_end      INTEGER NOT NULL DEFAULT 0,
  signature       TEXT NOT NULL DEFAULT '',
  documentation   TEXT NOT NULL DEFAULT '',
  is_exported     INTEGER NOT NULL DEFAULT 0,
  metadata        TEXT NOT NULL DEFAULT '{}',
  UNIQUE (file_id, name, kind, line_start)
);

CREATE TABLE IF NOT EXISTS references_ (
  id              INTEGER PRIMARY KEY,
  repository_id   TEXT NOT NULL,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  reference_type  TEXT NOT NULL,
  target_name     TEXT NOT NULL,
  line_number     INTEGER NOT NULL,
  column_number   INTEGER NOT NULL DEFAULT 0,
  metadata        TEXT NOT NULL DEFAULT '{}'
);

-- Resolution tables

CREATE TABLE IF NOT EXISTS edges (
  id              INTEGER PRIMARY KEY,
  repository_id   TEXT NOT NULL,
  from_file_id    INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  from_symbol_id  INTEGER REFERENCES symbols(id) ON DELETE CASCADE,
  to_file_id      INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  to_symbol_id    INTEGER REFERENCES symbols(id) ON DELETE CASCADE,
  dependency_type TEXT NOT NULL,
  metadata        TEXT NOT NULL DEFAULT '{}'
);

-- Run bookkeeping

CREATE TABLE IF NOT EXISTS runs (
  id                  TEXT PRIMARY KEY,
  repository_id       TEXT NOT NULL,
  state               TEXT NOT NULL,
  last_pass           INTEGER NOT NULL DEFAULT 0,
  error               TEXT NOT NULL DEFAULT '',
  retryable           INTEGER NOT NULL DEFAULT 0,
  full_run            INTEGER NOT NULL DEFAULT 0,
  files_total         INTEGER NOT NULL DEFAULT 0,
  files_indexed       INTEGER NOT NULL DEFAULT 0,
  files_failed        INTEGER NOT NULL DEFAULT 0,
  edges_written       INTEGER NOT NULL DEFAULT 0,
  references_dropped  INTEGER NOT NULL DEFAULT 0,
  warnings            TEXT NOT NULL DEFAULT '[]',
  failed_files        TEXT NOT NULL DEFAULT '[]',
  started_at          TIMESTAMP NOT NULL,
  updated_at          TIMESTAMP NOT NULL,
  finished_at         TIMESTAMP
);

CREATE TABLE IF NOT EXISTS run_files (
  run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  PRIMARY KEY (run_id, file_id)
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_symbols_repo_name ON symbols(repository_id, name);
CREATE INDEX IF NOT EXISTS idx_references_file ON references_(file_id);
CREATE INDEX IF NOT EXISTS idx_edges_repo_from ON edges(repository_id, from_file_id);
CREATE INDEX IF NOT EXISTS idx_edges_to_file ON edges(to_file_id);
CREATE INDEX IF NOT EXISTS idx_edges_from_symbol ON edges(from_symbol_id);
CREATE INDEX IF NOT EXISTS idx_edges_to_symbol ON edges(to_symbol_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_edges_identity ON edges(
  from_file_id, IFNULL(from_symbol_id, 0), to_file_id, IFNULL(to_symbol_id, 0), dependency_type
);
CREATE INDEX IF NOT EXISTS idx_runs_repo ON runs(repository_id, started_at);
CREATE INDEX IF NOT EXISTS idx_run_files_file ON run_files(file_id);
`

// Counts returns row counts for a repository.
func (s *Store) Counts(ctx context.Context, repoID string) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		dst   *int
		query string
	}{
		{&c.Files, "SELECT COUNT(*) FROM files WHERE repository_id = ?"},
		{&c.Symbols, "SELECT COUNT(*) FROM symbols WHERE repository_id = ?"},
		{&c.References, "SELECT COUNT(*) FROM references_ WHERE repository_id = ?"},
		{&c.Edges, "SELECT COUNT(*) FROM edges WHERE repository_id = ?"},
	} {
		if err := s.db.QueryRowContext(ctx, q.query, repoID).Scan(q.dst); err != nil {
			return Counts{}, fmt.Errorf("counts: %w", err)
		}
	}
	return c, nil
}
