package store

import "context"

// DataStore is the storage contract the indexing pipeline and query engine
// depend on. *Store implements it on SQLite; tests wrap it to inject
// failures.
type DataStore interface {
	// Pass 1
	CommitBatch(ctx context.Context, batch *Batch) (map[int64]int64, error)
	DeleteFilesNotIn(ctx context.Context, repoID string, keep []string) ([]*File, error)

	// Pass 2
	FilesByRepository(ctx context.Context, repoID string) ([]*File, error)
	SymbolsByRepository(ctx context.Context, repoID string) ([]*Symbol, error)
	ReferencesByFiles(ctx context.Context, repoID string, fileIDs []int64) ([]*Reference, error)
	DependentFileIDs(ctx context.Context, repoID string, fileIDs []int64) ([]int64, error)
	ReplaceEdges(ctx context.Context, repoID string, fromFileIDs []int64, edges []*Edge) error

	// Queries
	FileByPath(ctx context.Context, repoID, path string) (*File, error)
	SymbolsByFile(ctx context.Context, fileID int64) ([]*Symbol, error)
	SymbolByID(ctx context.Context, id int64) (*Symbol, error)
	EdgesByRepository(ctx context.Context, repoID string) ([]*Edge, error)
	Counts(ctx context.Context, repoID string) (Counts, error)

	// Runs
	CreateRun(ctx context.Context, r *Run) error
	UpdateRun(ctx context.Context, r *Run) error
	RunByID(ctx context.Context, id string) (*Run, error)
	RunFileIDs(ctx context.Context, runID string) ([]int64, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
