package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/datavtar/localfirst/internal/models"
)

// Draft is an editable copy of an entity bound to a form. Nothing reaches
// the store until Commit.
type Draft[T models.Entity[T]] struct {
	store    *Store[T]
	value    T
	existing bool
	closed   bool
}

// NewDraft starts a draft for a new entity.
func (s *Store[T]) NewDraft(initial T) *Draft[T] {
	return &Draft[T]{store: s, value: initial}
}

// EditDraft starts a draft from the stored entity with id.
func (s *Store[T]) EditDraft(id string) (*Draft[T], error) {
	v, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &Draft[T]{store: s, value: v, existing: true}, nil
}

// Edit applies fn to the draft value. Changing the id of an existing draft
// is ignored.
func (d *Draft[T]) Edit(fn func(*T)) {
	id := d.value.EntityMeta().ID
	fn(&d.value)
	if d.existing {
		m := d.value.EntityMeta()
		m.ID = id
		d.value = d.value.WithMeta(m)
	}
}

// Value returns the current draft value.
func (d *Draft[T]) Value() T { return d.value }

// Commit saves the draft: Update for an existing entity, Create otherwise.
// The draft is closed afterwards even when persistence failed, because the
// store already holds the change in memory.
func (d *Draft[T]) Commit(ctx context.Context) (T, error) {
	if d.closed {
		var zero T
		return zero, ErrDraftClosed
	}
	var (
		v   T
		err error
	)
	if d.existing {
		v, err = d.store.Update(ctx, d.value)
	} else {
		v, err = d.store.Create(ctx, d.value)
	}
	var pe *PersistenceError
	if err == nil || errors.As(err, &pe) {
		d.closed = true
	}
	return v, err
}

// Discard abandons the draft.
func (d *Draft[T]) Discard() { d.closed = true }

// Closed reports whether the draft was committed or discarded.
func (d *Draft[T]) Closed() bool { return d.closed }
