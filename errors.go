package codegraph

import (
	"errors"

	"github.com/jward/codegraph/internal/store"
)

var (
	// ErrRunInProgress is returned under the reject lock policy when the
	// repository already has a run holding its write lock.
	ErrRunInProgress = errors.New("indexing run already in progress for repository")
	ErrRunNotFound   = errors.New("run not found")
	// ErrNotResumable is returned by Resume for runs that did not fail after
	// committing Pass 1.
	ErrNotResumable     = errors.New("run is not resumable")
	ErrInvalidDepth     = errors.New("depth must be non-negative")
	ErrInvalidDirection = errors.New("direction must be forward or reverse")
	ErrTargetNotFound   = errors.New("target not found")
	ErrEmptyRepository  = errors.New("repository id is empty")

	// ErrStorageConflict marks a retryable write conflict.
	ErrStorageConflict = store.ErrStorageConflict
)
