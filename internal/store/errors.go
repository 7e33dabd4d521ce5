package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups that miss. Callers that treat a
// miss as a normal outcome (scan validation, idempotency checks) match
// it with errors.Is.
var ErrNotFound = errors.New("record not found")

// ErrCounterConflict is returned when a compare-and-swap against a
// season counter loses to a concurrent writer. The allocator re-reads
// and retries.
var ErrCounterConflict = errors.New("season counter advanced concurrently")

// PersistenceError wraps a storage failure. When a caller sees one, the
// write may or may not have been applied; the caller decides whether to
// retry the whole operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// wrap normalizes driver errors: sql.ErrNoRows becomes ErrNotFound,
// anything else becomes a PersistenceError for the given operation.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return &PersistenceError{Op: op, Err: err}
}
