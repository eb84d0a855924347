package store

import (
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrStorageConflict marks a write that collided with a concurrent writer:
// a busy or locked database, or a unique-constraint violation from an
// overlapping run. Callers may retry.
var ErrStorageConflict = errors.New("storage conflict")

// TenantMismatchError reports an edge endpoint that belongs to a different
// repository than the edge itself. It is never recoverable.
type TenantMismatchError struct {
	RepositoryID      string
	OtherRepositoryID string
	Table             string // "files" or "symbols"
	ID                int64
}

func (e *TenantMismatchError) Error() string {
	other := e.OtherRepositoryID
	if other == "" {
		other = "<unknown>"
	}
	return fmt.Sprintf("tenant mismatch: %s id %d belongs to repository %q, edge belongs to %q",
		e.Table, e.ID, other, e.RepositoryID)
}

// classifyError wraps SQLite contention and uniqueness failures with
// ErrStorageConflict and returns all other errors unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.Code == sqlite3.ErrBusy, se.Code == sqlite3.ErrLocked:
		return fmt.Errorf("%w: %w", ErrStorageConflict, err)
	case se.ExtendedCode == sqlite3.ErrConstraintUnique, se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %w", ErrStorageConflict, err)
	}
	return err
}
