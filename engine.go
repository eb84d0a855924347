package codegraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jward/codegraph/internal/discover"
	"github.com/jward/codegraph/internal/metrics"
	"github.com/jward/codegraph/internal/parse"
	"github.com/jward/codegraph/internal/resolve"
	"github.com/jward/codegraph/internal/store"
)

// Engine orchestrates the indexing pipeline: discovery, Pass 1 (parse,
// extract, commit) and Pass 2 (resolve, replace edges). Each repository has
// a single writer; runs of different repositories proceed independently.
type Engine struct {
	store      DataStore
	discoverer Discoverer
	parser     parse.Parser
	index      SearchIndex // nil disables full-text indexing
	logger     *slog.Logger

	workers   int
	batchSize int
	policy    LockPolicy
	locks     *repoLocks

	// closer releases resources the Engine opened itself.
	closer func() error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithWorkers bounds the Pass 1 parse pool. Zero or less means NumCPU.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithCommitBatchSize sets how many files are committed per Pass 1
// transaction.
func WithCommitBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithLockPolicy controls what a second concurrent run of the same
// repository does. The default is LockQueue.
func WithLockPolicy(p LockPolicy) Option {
	return func(e *Engine) {
		if p != "" {
			e.policy = p
		}
	}
}

// WithSearchIndex keeps a full-text index in step with committed files.
func WithSearchIndex(idx SearchIndex) Option {
	return func(e *Engine) {
		e.index = idx
	}
}

// WithParser replaces the tree-sitter parser.
func WithParser(p parse.Parser) Option {
	return func(e *Engine) {
		if p != nil {
			e.parser = p
		}
	}
}

// WithDiscoverer replaces the on-disk discoverer.
func WithDiscoverer(d Discoverer) Option {
	return func(e *Engine) {
		if d != nil {
			e.discoverer = d
		}
	}
}

// New creates an Engine over an existing store.
func New(s DataStore, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		parser:    parse.TreeSitter{},
		logger:    slog.Default(),
		workers:   runtime.NumCPU(),
		batchSize: 100,
		policy:    LockQueue,
		locks:     newRepoLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.discoverer == nil {
		e.discoverer = &discover.Local{Logger: e.logger}
	}
	return e
}

// Open creates an Engine backed by a migrated SQLite database at dbPath.
// Close releases the database.
func Open(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("codegraph: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("codegraph: migrate: %w", err)
	}
	e := New(s, opts...)
	e.closer = s.Close
	return e, nil
}

// Close releases resources opened by Open. The search index belongs to the
// caller.
func (e *Engine) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

// Store returns the underlying store.
func (e *Engine) Store() DataStore {
	return e.store
}

// Query returns a QueryBuilder over the Engine's store and search index.
func (e *Engine) Query() *QueryBuilder {
	return NewQueryBuilder(e.store, e.index)
}

// IndexRequest describes one run. A nil Files triggers discovery and a full
// run that also prunes files no longer present; a non-nil Files indexes
// exactly those files and prunes nothing.
type IndexRequest struct {
	Repository Repository
	Files      []SourceFile
	// RunID is generated when empty.
	RunID string
}

// Index runs discovery and both passes over repo.
func (e *Engine) Index(ctx context.Context, repo Repository) (*RunReport, error) {
	return e.Run(ctx, IndexRequest{Repository: repo})
}

// IndexFiles runs both passes over an explicit file set.
func (e *Engine) IndexFiles(ctx context.Context, repo Repository, files []SourceFile) (*RunReport, error) {
	if files == nil {
		files = []SourceFile{}
	}
	return e.Run(ctx, IndexRequest{Repository: repo, Files: files})
}

// Run executes one indexing run and returns its final report. The report is
// returned alongside the error when the run failed after it was recorded.
func (e *Engine) Run(ctx context.Context, req IndexRequest) (*RunReport, error) {
	repo := req.Repository
	if repo.ID == "" {
		return nil, ErrEmptyRepository
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	rt := &runTracker{
		e: e,
		run: &store.Run{
			ID:           runID,
			RepositoryID: repo.ID,
			State:        StatePending,
			Full:         req.Files == nil,
		},
		logger: e.logger.With("repository_id", repo.ID, "run_id", runID),
	}
	if err := e.store.CreateRun(ctx, rt.run); err != nil {
		return nil, fmt.Errorf("codegraph: %w", err)
	}
	rt.logger.Info("run created", "state", StatePending, "full", rt.run.Full)

	release, err := e.locks.acquire(ctx, repo.ID, e.policy)
	if err != nil {
		rt.fail(ctx, err, false)
		return rt.run, err
	}
	defer release()

	files := req.Files
	if files == nil {
		if err := rt.transition(ctx, StateDiscovering); err != nil {
			return rt.run, err
		}
		files, err = e.discoverer.Discover(ctx, repo)
		if err != nil {
			err = fmt.Errorf("discover: %w", err)
			rt.fail(ctx, err, errors.Is(err, context.Canceled))
			return rt.run, err
		}
	}
	rt.run.FilesTotal = len(files)
	if len(files) == 0 {
		rt.finish(ctx, StateSkipped)
		return rt.run, nil
	}

	if err := rt.transition(ctx, StateParsingPass1); err != nil {
		return rt.run, err
	}
	start := time.Now()
	touched, err := e.pass1(ctx, rt, files)
	if err != nil {
		rt.fail(ctx, err, isRetryable(err))
		return rt.run, err
	}

	dependents, err := e.store.DependentFileIDs(ctx, repo.ID, touched)
	if err != nil {
		rt.fail(ctx, err, isRetryable(err))
		return rt.run, err
	}
	importers, err := e.importersOf(ctx, repo.ID, touched)
	if err != nil {
		rt.fail(ctx, err, isRetryable(err))
		return rt.run, err
	}
	dependents = append(dependents, importers...)
	if rt.run.Full {
		orphaned, err := e.prune(ctx, rt, files)
		if err != nil {
			rt.fail(ctx, err, isRetryable(err))
			return rt.run, err
		}
		dependents = append(dependents, orphaned...)
	}
	metrics.ObservePass("pass1", start)

	rt.run.LastPass = 1
	if err := rt.transition(ctx, StateCommittedPass1); err != nil {
		return rt.run, err
	}

	if err := e.pass2(ctx, rt, unionIDs(touched, dependents)); err != nil {
		return rt.run, err
	}
	return rt.run, nil
}

// Resume reruns Pass 2 for a run that failed after committing Pass 1. The
// same run record is moved back to resolving_pass2.
func (e *Engine) Resume(ctx context.Context, runID string) (*RunReport, error) {
	run, err := e.store.RunByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("codegraph: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if run.State != StateFailed || run.LastPass != 1 {
		return run, fmt.Errorf("%w: %s is %s at pass %d", ErrNotResumable, runID, run.State, run.LastPass)
	}

	rt := &runTracker{
		e:      e,
		run:    run,
		logger: e.logger.With("repository_id", run.RepositoryID, "run_id", runID),
	}
	release, err := e.locks.acquire(ctx, run.RepositoryID, e.policy)
	if err != nil {
		return run, err
	}
	defer release()

	touched, err := e.store.RunFileIDs(ctx, runID)
	if err != nil {
		return run, fmt.Errorf("codegraph: %w", err)
	}
	dependents, err := e.store.DependentFileIDs(ctx, run.RepositoryID, touched)
	if err != nil {
		return run, fmt.Errorf("codegraph: %w", err)
	}
	importers, err := e.importersOf(ctx, run.RepositoryID, touched)
	if err != nil {
		return run, fmt.Errorf("codegraph: %w", err)
	}
	dependents = append(dependents, importers...)
	run.Error = ""
	run.Retryable = false
	run.FinishedAt = nil
	rt.logger.Info("resuming run", "count", len(touched))

	if err := e.pass2(ctx, rt, unionIDs(touched, dependents)); err != nil {
		return rt.run, err
	}
	return rt.run, nil
}

// RunStatus returns the persisted report of a run.
func (e *Engine) RunStatus(ctx context.Context, runID string) (*RunReport, error) {
	run, err := e.store.RunByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("codegraph: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// importersOf returns the files with an import specifier that may name one of
// touched's paths. Unlike DependentFileIDs it does not need an existing
// edge, so a file whose import was unresolved is picked up once its target
// appears.
func (e *Engine) importersOf(ctx context.Context, repoID string, touched []int64) ([]int64, error) {
	files, err := e.store.FilesByRepository(ctx, repoID)
	if err != nil {
		return nil, err
	}
	isTouched := make(map[int64]bool, len(touched))
	for _, id := range touched {
		isTouched[id] = true
	}
	targets := make(map[string]bool, len(touched))
	paths := make(map[int64]string, len(files))
	var others []int64
	for _, f := range files {
		p := path.Clean(f.Path)
		paths[f.ID] = p
		if isTouched[f.ID] {
			targets[p] = true
		} else {
			others = append(others, f.ID)
		}
	}
	if len(targets) == 0 || len(others) == 0 {
		return nil, nil
	}

	refs, err := e.store.ReferencesByFiles(ctx, repoID, others)
	if err != nil {
		return nil, err
	}
	var out []int64
	seen := make(map[int64]bool)
	for _, ref := range refs {
		if ref.ReferenceType != store.RefImport || seen[ref.FileID] {
			continue
		}
		for _, c := range resolve.Candidates(paths[ref.FileID], ref.Metadata.String("import_source")) {
			if targets[c] {
				seen[ref.FileID] = true
				out = append(out, ref.FileID)
				break
			}
		}
	}
	return out, nil
}

// prune deletes files of the repository that were not discovered and
// returns the files whose edges pointed into them.
func (e *Engine) prune(ctx context.Context, rt *runTracker, files []SourceFile) ([]int64, error) {
	repoID := rt.run.RepositoryID
	keep := make(map[string]bool, len(files))
	paths := make([]string, len(files))
	for i, f := range files {
		keep[f.Path] = true
		paths[i] = f.Path
	}

	existing, err := e.store.FilesByRepository(ctx, repoID)
	if err != nil {
		return nil, err
	}
	var stale []int64
	for _, f := range existing {
		if !keep[f.Path] {
			stale = append(stale, f.ID)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	// Dependents must be read before the cascade removes their edges.
	dependents, err := e.store.DependentFileIDs(ctx, repoID, stale)
	if err != nil {
		return nil, err
	}
	deleted, err := e.store.DeleteFilesNotIn(ctx, repoID, paths)
	if err != nil {
		return nil, err
	}
	for _, f := range deleted {
		if e.index != nil {
			if err := e.index.DeleteFile(ctx, repoID, f.Path); err != nil {
				rt.warn(fmt.Sprintf("search index: delete %s: %v", f.Path, err))
			}
		}
	}
	rt.logger.Info("pruned files", "count", len(deleted))
	return dependents, nil
}

// pass2 resolves references for affected files and replaces their edges.
func (e *Engine) pass2(ctx context.Context, rt *runTracker, affected []int64) error {
	if err := rt.transition(ctx, StateResolvingPass2); err != nil {
		return err
	}
	start := time.Now()
	repoID := rt.run.RepositoryID

	out, err := e.resolve(ctx, repoID, affected)
	if err != nil {
		var tm *TenantMismatchError
		rt.fail(ctx, err, !errors.As(err, &tm) && isRetryable(err))
		return err
	}

	for _, w := range out.Warnings {
		rt.logger.Warn("unresolved reference", "path", w.Path, "line", w.Line, "target", w.Target, "kind", w.Kind)
		rt.warn(w.String())
	}
	rt.run.ReferencesDropped = out.Dropped
	metrics.ReferencesDropped.WithLabelValues("unresolved").Add(float64(out.Dropped - out.Ambiguous))
	metrics.ReferencesDropped.WithLabelValues(resolve.WarningAmbiguous).Add(float64(out.Ambiguous))

	if err := e.store.ReplaceEdges(ctx, repoID, affected, out.Edges); err != nil {
		var tm *TenantMismatchError
		rt.fail(ctx, err, !errors.As(err, &tm) && isRetryable(err))
		return err
	}
	rt.run.EdgesWritten = len(out.Edges)
	metrics.EdgesWritten.Add(float64(len(out.Edges)))
	metrics.ObservePass("pass2", start)

	rt.run.LastPass = 2
	rt.finish(ctx, StateCompleted)
	return nil
}

// resolve re-reads the repository from the store and runs the resolver over
// affected. Every record and edge endpoint is checked against repoID.
func (e *Engine) resolve(ctx context.Context, repoID string, affected []int64) (resolve.Output, error) {
	files, err := e.store.FilesByRepository(ctx, repoID)
	if err != nil {
		return resolve.Output{}, err
	}
	syms, err := e.store.SymbolsByRepository(ctx, repoID)
	if err != nil {
		return resolve.Output{}, err
	}
	fileIDs := make([]int64, len(files))
	fileSet := make(map[int64]bool, len(files))
	for i, f := range files {
		if f.RepositoryID != repoID {
			return resolve.Output{}, &TenantMismatchError{RepositoryID: repoID, OtherRepositoryID: f.RepositoryID, Table: "files", ID: f.ID}
		}
		fileIDs[i] = f.ID
		fileSet[f.ID] = true
	}
	symSet := make(map[int64]bool, len(syms))
	for _, s := range syms {
		if s.RepositoryID != repoID {
			return resolve.Output{}, &TenantMismatchError{RepositoryID: repoID, OtherRepositoryID: s.RepositoryID, Table: "symbols", ID: s.ID}
		}
		symSet[s.ID] = true
	}
	refs, err := e.store.ReferencesByFiles(ctx, repoID, fileIDs)
	if err != nil {
		return resolve.Output{}, err
	}

	var sources []int64
	for _, id := range affected {
		if fileSet[id] {
			sources = append(sources, id)
		}
	}
	out := resolve.Resolve(resolve.Input{
		RepositoryID: repoID,
		Files:        files,
		Symbols:      syms,
		References:   refs,
		Sources:      sources,
	})

	for _, edge := range out.Edges {
		if edge.RepositoryID != repoID {
			return out, &TenantMismatchError{RepositoryID: repoID, OtherRepositoryID: edge.RepositoryID, Table: "edges", ID: edge.FromFileID}
		}
		for _, id := range []int64{edge.FromFileID, edge.ToFileID} {
			if !fileSet[id] {
				return out, &TenantMismatchError{RepositoryID: repoID, Table: "files", ID: id}
			}
		}
		for _, id := range []*int64{edge.FromSymbolID, edge.ToSymbolID} {
			if id != nil && !symSet[*id] {
				return out, &TenantMismatchError{RepositoryID: repoID, Table: "symbols", ID: *id}
			}
		}
	}
	return out, nil
}

// runTracker persists and logs the state of one run.
type runTracker struct {
	e      *Engine
	run    *store.Run
	logger *slog.Logger
}

func (rt *runTracker) transition(ctx context.Context, state string) error {
	rt.run.State = state
	if err := rt.e.store.UpdateRun(ctx, rt.run); err != nil {
		err = fmt.Errorf("codegraph: record %s: %w", state, err)
		rt.fail(ctx, err, isRetryable(err))
		return err
	}
	rt.logger.Info("run state", "state", state)
	return nil
}

func (rt *runTracker) warn(msg string) {
	if len(rt.run.Warnings) < maxRunWarnings {
		rt.run.Warnings = append(rt.run.Warnings, msg)
	}
}

// fail marks the run failed at its last committed pass. The record is
// written with a fresh context so a cancelled run still reaches a terminal
// state.
func (rt *runTracker) fail(ctx context.Context, cause error, retryable bool) {
	rt.run.Error = cause.Error()
	rt.run.Retryable = retryable
	rt.logger.Error("run failed", "state", StateFailed, "last_pass", rt.run.LastPass, "retryable", retryable, "error", cause)
	rt.finish(context.WithoutCancel(ctx), StateFailed)
}

func (rt *runTracker) finish(ctx context.Context, state string) {
	now := time.Now().UTC()
	rt.run.State = state
	rt.run.FinishedAt = &now
	if err := rt.e.store.UpdateRun(ctx, rt.run); err != nil {
		rt.logger.Error("record run", "state", state, "error", err)
	}
	metrics.RunsTotal.WithLabelValues(state).Inc()
	if state != StateFailed {
		rt.logger.Info("run finished", "state", state,
			"files", rt.run.FilesIndexed, "failed", rt.run.FilesFailed, "edges", rt.run.EdgesWritten)
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrStorageConflict)
}

// unionIDs merges id lists into one sorted, de-duplicated slice.
func unionIDs(lists ...[]int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, l := range lists {
		for _, id := range l {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
