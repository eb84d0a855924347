package codegraph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jward/codegraph/internal/metrics"
)

// DefaultCacheSize is the number of impact results a Service keeps.
const DefaultCacheSize = 256

// Service is the transport-facing facade: runs are started asynchronously
// and tracked by ID, and impact results are cached until the repository is
// re-indexed.
type Service struct {
	engine *Engine
	query  *QueryBuilder
	cache  *lru.Cache[string, *ImpactResult]
	logger *slog.Logger

	mu   sync.Mutex
	runs map[string]chan struct{} // closed when the run finishes
	// gens counts finished runs per repository; a cached result is only
	// stored if no run finished while it was computed.
	gens map[string]uint64
	wg   sync.WaitGroup
}

// NewService wraps an Engine. cacheSize <= 0 means DefaultCacheSize.
func NewService(e *Engine, cacheSize int) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *ImpactResult](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("service: create cache: %w", err)
	}
	return &Service{
		engine: e,
		query:  e.Query(),
		cache:  cache,
		logger: e.logger,
		runs:   make(map[string]chan struct{}),
		gens:   make(map[string]uint64),
	}, nil
}

// TriggerIndex starts a full run in the background and returns its ID. The
// run outlives ctx's cancellation but keeps its values.
func (s *Service) TriggerIndex(ctx context.Context, repo Repository) (string, error) {
	if repo.ID == "" {
		return "", ErrEmptyRepository
	}
	runID := uuid.NewString()
	done := make(chan struct{})
	s.mu.Lock()
	s.runs[runID] = done
	s.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.forget(runID)
		defer close(done)
		report, err := s.engine.Run(runCtx, IndexRequest{Repository: repo, RunID: runID})
		s.purge(repo.ID)
		if err != nil {
			s.logger.Error("background run failed", "repository_id", repo.ID, "run_id", runID, "error", err)
			return
		}
		s.logger.Info("background run finished", "repository_id", repo.ID, "run_id", runID, "state", report.State)
	}()
	return runID, nil
}

// RunStatus returns the persisted report of a run.
func (s *Service) RunStatus(ctx context.Context, runID string) (*RunReport, error) {
	return s.engine.RunStatus(ctx, runID)
}

// Wait blocks until a run started by TriggerIndex finishes, then returns
// its report. Runs not started by this Service are returned as stored.
func (s *Service) Wait(ctx context.Context, runID string) (*RunReport, error) {
	s.mu.Lock()
	done, ok := s.runs[runID]
	s.mu.Unlock()
	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.engine.RunStatus(ctx, runID)
}

// Close waits for background runs to finish.
func (s *Service) Close() {
	s.wg.Wait()
}

// Search delegates to QueryBuilder.Search.
func (s *Service) Search(ctx context.Context, repoID, term string, limit int) ([]SearchHit, error) {
	return s.query.Search(ctx, repoID, term, limit)
}

// Impact delegates to QueryBuilder.Impact through the cache.
func (s *Service) Impact(ctx context.Context, repoID, target string, opts ImpactOptions) (*ImpactResult, error) {
	key := impactKey(repoID, target, opts)
	if r, ok := s.cache.Get(key); ok {
		metrics.ImpactCache.WithLabelValues("hit").Inc()
		return r, nil
	}
	metrics.ImpactCache.WithLabelValues("miss").Inc()
	gen := s.generation(repoID)
	r, err := s.query.Impact(ctx, repoID, target, opts)
	if err != nil {
		return nil, err
	}
	s.cacheIfCurrent(key, repoID, gen, r)
	return r, nil
}

func impactKey(repoID, target string, opts ImpactOptions) string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%d\x00%t", repoID, target, opts.Direction, opts.MaxDepth, opts.ExcludeTests)
}

// Dependencies delegates to QueryBuilder.Dependencies.
func (s *Service) Dependencies(ctx context.Context, repoID, path string, depth int) (*DependencyReport, error) {
	return s.query.Dependencies(ctx, repoID, path, depth)
}

// forget drops the bookkeeping of a finished run. Later Waits read the
// stored report.
func (s *Service) forget(runID string) {
	s.mu.Lock()
	delete(s.runs, runID)
	s.mu.Unlock()
}

func (s *Service) generation(repoID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[repoID]
}

// cacheIfCurrent stores r unless a run of repoID finished after gen was read.
func (s *Service) cacheIfCurrent(key, repoID string, gen uint64, r *ImpactResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[repoID] != gen {
		return
	}
	s.cache.Add(key, r)
}

// purge invalidates cached results of one repository.
func (s *Service) purge(repoID string) {
	s.mu.Lock()
	s.gens[repoID]++
	s.mu.Unlock()
	prefix := repoID + "\x00"
	for _, k := range s.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.cache.Remove(k)
		}
	}
}
