package codegraph

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// LockPolicy decides what happens when a run is requested for a repository
// that already has one in progress.
type LockPolicy string

const (
	// LockQueue waits for the running run to finish.
	LockQueue LockPolicy = "queue"
	// LockReject fails fast with ErrRunInProgress.
	LockReject LockPolicy = "reject"
)

// ParseLockPolicy validates a policy name.
func ParseLockPolicy(s string) (LockPolicy, error) {
	switch LockPolicy(s) {
	case LockQueue, LockReject:
		return LockPolicy(s), nil
	case "":
		return LockQueue, nil
	}
	return "", fmt.Errorf("unknown lock policy %q", s)
}

// repoLocks hands out one single-writer lock per repository.
type repoLocks struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func newRepoLocks() *repoLocks {
	return &repoLocks{sems: make(map[string]*semaphore.Weighted)}
}

func (l *repoLocks) sem(repoID string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[repoID]
	if !ok {
		s = semaphore.NewWeighted(1)
		l.sems[repoID] = s
	}
	return s
}

// acquire takes the write lock for repoID and returns its release func.
func (l *repoLocks) acquire(ctx context.Context, repoID string, policy LockPolicy) (func(), error) {
	s := l.sem(repoID)
	if policy == LockReject {
		if !s.TryAcquire(1) {
			return nil, ErrRunInProgress
		}
	} else if err := s.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { s.Release(1) }) }, nil
}
