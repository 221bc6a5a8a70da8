package store

import (
	"context"
	"fmt"

	"github.com/datavtar/localfirst/internal/models"
)

// Policy is the delete behaviour for entities referencing another collection.
type Policy int

const (
	// Dangle leaves references in place; consumers resolve them as missing.
	Dangle Policy = iota
	// CascadeDelete removes referencing entities together with their target.
	CascadeDelete
)

func (p Policy) String() string {
	if p == CascadeDelete {
		return "cascade"
	}
	return "dangle"
}

// Relate wires child's reference to parent according to policy. ref extracts
// the referenced parent id from a child.
func Relate[P models.Entity[P], C models.Entity[C]](parent *Store[P], child *Store[C], policy Policy, ref func(C) string) {
	if policy != CascadeDelete {
		return
	}
	parent.OnRemove(func(ctx context.Context, id string) error {
		_, err := child.RemoveWhere(ctx, func(c C) bool { return ref(c) == id })
		if err != nil {
			return fmt.Errorf("cascade %s -> %s: %w", parent.Key(), child.Key(), err)
		}
		return nil
	})
}

// Resolve looks up the entity a reference points to. A dangling or empty
// reference yields ok == false.
func Resolve[T models.Entity[T]](s *Store[T], id string) (T, bool) {
	if id == "" {
		var zero T
		return zero, false
	}
	return s.Get(id)
}
