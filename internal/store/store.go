// Package store implements the persisted entity collections. A Store owns one
// collection exclusively, keeps it fully in memory in insertion order, and
// writes the whole collection back to its medium before every mutating call
// returns.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/datavtar/localfirst/internal/kv"
	"github.com/datavtar/localfirst/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IDPolicy decides who assigns entity ids.
type IDPolicy int

const (
	// GenerateIDs assigns a fresh id when the entity has none.
	GenerateIDs IDPolicy = iota
	// CallerIDs requires every created entity to carry its own unique id.
	CallerIDs
)

// UpdatePolicy decides what Update does with an unknown id.
type UpdatePolicy int

const (
	// Strict fails with ErrNotFound.
	Strict UpdatePolicy = iota
	// Upsert creates the entity.
	Upsert
)

func (p UpdatePolicy) String() string {
	if p == Upsert {
		return "upsert"
	}
	return "strict"
}

// RemoveHook runs after an entity was removed from its store.
type RemoveHook func(ctx context.Context, id string) error

// Options configures a Store.
type Options[T any] struct {
	// Key is the namespaced medium key, see kv.Namespace.
	Key string
	// Defaults seeds the collection when the key is missing.
	Defaults []T
	IDs      IDPolicy
	Update   UpdatePolicy
	// NewID defaults to uuid.NewString.
	NewID func() string
	// Now defaults to time.Now in UTC.
	Now    func() time.Time
	Logger *zap.Logger
}

// Store is a persisted collection of T keyed by id.
type Store[T models.Entity[T]] struct {
	medium kv.Medium
	opts   Options[T]
	log    *zap.Logger

	mu    sync.Mutex
	items []T
	index map[string]int
	hooks []RemoveHook
}

// New returns an empty store on medium. Call Load to rehydrate it.
func New[T models.Entity[T]](medium kv.Medium, opts Options[T]) *Store[T] {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Store[T]{
		medium: medium,
		opts:   opts,
		log:    log.With(zap.String("key", opts.Key)),
		index:  make(map[string]int),
	}
}

// Key returns the medium key the collection is persisted under.
func (s *Store[T]) Key() string { return s.opts.Key }

// UpdatePolicy reports how Update treats unknown ids.
func (s *Store[T]) UpdatePolicy() UpdatePolicy { return s.opts.Update }

// OnRemove registers a hook run after each successful Remove of an existing id.
func (s *Store[T]) OnRemove(h RemoveHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Load rehydrates the collection from the medium and returns it. It never
// fails: items is always usable. A missing key yields the defaults, which are
// persisted at once. An unreadable or malformed value also yields the
// defaults, and warn describes what went wrong.
func (s *Store[T]) Load(ctx context.Context) (items []T, warn error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := s.medium.Get(ctx, s.opts.Key)
	switch {
	case err != nil:
		warn = &PersistenceError{Key: s.opts.Key, Op: "load", Err: err}
		s.log.Warn("cannot read collection, using defaults", zap.Error(err))
		s.reset(s.defaults())
	case !ok:
		s.reset(s.defaults())
		if err := s.persist(ctx); err != nil {
			warn = err
			s.log.Warn("cannot persist seeded collection", zap.Error(err))
		}
	default:
		var decoded []T
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			warn = fmt.Errorf("%w: %s: %v", ErrCorruptSnapshot, s.opts.Key, err)
			s.log.Warn("malformed collection, using defaults", zap.Error(err))
			decoded = s.defaults()
		}
		s.reset(decoded)
	}
	return s.snapshot(), warn
}

func (s *Store[T]) defaults() []T {
	out := make([]T, len(s.opts.Defaults))
	copy(out, s.opts.Defaults)
	return out
}

// reset replaces the in-memory collection, assigning missing ids and
// dropping later duplicates.
func (s *Store[T]) reset(items []T) {
	s.items = make([]T, 0, len(items))
	s.index = make(map[string]int, len(items))
	for _, it := range items {
		m := it.EntityMeta()
		if m.ID == "" {
			m.ID = s.opts.NewID()
			it = it.WithMeta(m)
		}
		if _, dup := s.index[m.ID]; dup {
			s.log.Warn("dropping duplicate id from snapshot", zap.String("id", m.ID))
			continue
		}
		s.index[m.ID] = len(s.items)
		s.items = append(s.items, it)
	}
}

func (s *Store[T]) snapshot() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// persist writes the whole collection. Callers hold s.mu.
func (s *Store[T]) persist(ctx context.Context) error {
	items := s.items
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return &PersistenceError{Key: s.opts.Key, Op: "encode", Err: err}
	}
	if err := s.medium.Set(ctx, s.opts.Key, string(b)); err != nil {
		s.log.Error("failed to persist collection", zap.Error(err))
		return &PersistenceError{Key: s.opts.Key, Op: "save", Err: err}
	}
	return nil
}

// List returns a copy of all entities in insertion order.
func (s *Store[T]) List() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Len reports the number of entities.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Get returns the entity with id. A dangling reference simply reports false.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[id]; ok {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

// Has reports whether id is present.
func (s *Store[T]) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Create appends e and persists. Under GenerateIDs an empty id is filled in.
// On a persistence failure the entity stays in memory and a
// *PersistenceError is returned together with it.
func (s *Store[T]) Create(ctx context.Context, e T) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.prepare(e)
	if err != nil {
		var zero T
		return zero, err
	}
	s.append(stored)
	return stored, s.persist(ctx)
}

// Insert creates several entities with a single write. Nothing is inserted
// if any of them is invalid.
func (s *Store[T]) Insert(ctx context.Context, entities ...T) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(entities) == 0 {
		return nil, nil
	}
	stored := make([]T, 0, len(entities))
	seen := make(map[string]bool, len(entities))
	for _, e := range entities {
		p, err := s.prepare(e)
		if err != nil {
			return nil, err
		}
		id := p.EntityMeta().ID
		if seen[id] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		seen[id] = true
		stored = append(stored, p)
	}
	for _, p := range stored {
		s.append(p)
	}
	return stored, s.persist(ctx)
}

func (s *Store[T]) prepare(e T) (T, error) {
	m := e.EntityMeta()
	if m.ID == "" {
		if s.opts.IDs == CallerIDs {
			return e, ErrMissingID
		}
		m.ID = s.opts.NewID()
	}
	if _, exists := s.index[m.ID]; exists {
		return e, fmt.Errorf("%w: %s", ErrDuplicateID, m.ID)
	}
	now := s.opts.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	return e.WithMeta(m), nil
}

func (s *Store[T]) append(e T) {
	s.index[e.EntityMeta().ID] = len(s.items)
	s.items = append(s.items, e)
}

// Update replaces the entity with the same id wholesale. CreatedAt is kept
// from the stored version. Unknown ids fail with ErrNotFound under Strict and
// are created under Upsert.
func (s *Store[T]) Update(ctx context.Context, e T) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := e.EntityMeta()
	i, ok := s.index[m.ID]
	if !ok || m.ID == "" {
		if s.opts.Update == Upsert {
			stored, err := s.prepare(e)
			if err != nil {
				var zero T
				return zero, err
			}
			s.append(stored)
			return stored, s.persist(ctx)
		}
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrNotFound, m.ID)
	}
	m.CreatedAt = s.items[i].EntityMeta().CreatedAt
	m.UpdatedAt = s.opts.Now()
	stored := e.WithMeta(m)
	s.items[i] = stored
	return stored, s.persist(ctx)
}

// Remove deletes id if present and always persists; removing an absent id
// is a no-op that still succeeds. Remove hooks run only for ids that existed.
func (s *Store[T]) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	existed := s.removeLocked(id)
	err := s.persist(ctx)
	hooks := append([]RemoveHook(nil), s.hooks...)
	s.mu.Unlock()

	if !existed {
		return err
	}
	errs := []error{err}
	for _, h := range hooks {
		errs = append(errs, h(ctx, id))
	}
	return errors.Join(errs...)
}

// RemoveWhere deletes every entity matching pred with a single write and
// returns the removed ids. Remove hooks are not run.
func (s *Store[T]) RemoveWhere(ctx context.Context, pred func(T) bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for _, it := range s.items {
		if pred(it) {
			removed = append(removed, it.EntityMeta().ID)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}
	for _, id := range removed {
		s.removeLocked(id)
	}
	return removed, s.persist(ctx)
}

func (s *Store[T]) removeLocked(id string) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].EntityMeta().ID] = j
	}
	return true
}

// Clear empties the collection and persists the empty array.
func (s *Store[T]) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.index = make(map[string]int)
	return s.persist(ctx)
}

// Drop empties the collection and removes its key from the medium, so the
// next Load seeds the defaults again.
func (s *Store[T]) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.index = make(map[string]int)
	if err := s.medium.Remove(ctx, s.opts.Key); err != nil {
		return &PersistenceError{Key: s.opts.Key, Op: "drop", Err: err}
	}
	return nil
}

// MarshalJSON encodes the current collection as a JSON array.
func (s *Store[T]) MarshalJSON() ([]byte, error) {
	items := s.List()
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}
