package store

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID is returned by Create when the id is already taken.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrNotFound is returned by a strict Update for an unknown id.
	ErrNotFound = errors.New("entity not found")
	// ErrMissingID is returned when a store that expects caller supplied ids
	// receives an entity without one.
	ErrMissingID = errors.New("missing id")
	// ErrCorruptSnapshot marks a persisted value that is not valid JSON for
	// the collection. It is only ever reported as a Load warning.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
	// ErrDraftClosed is returned when a committed or discarded draft is reused.
	ErrDraftClosed = errors.New("draft already closed")
)

// PersistenceError reports a failed read or write of the medium. The
// in-memory collection keeps the attempted mutation.
type PersistenceError struct {
	Key string
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
