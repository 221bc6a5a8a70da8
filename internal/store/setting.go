package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/datavtar/localfirst/internal/kv"
	"go.uber.org/zap"
)

// Setting is a single persisted value, such as app level preferences. It
// follows the same load rules as Store.
type Setting[T any] struct {
	medium   kv.Medium
	key      string
	defaults T
	log      *zap.Logger

	mu    sync.Mutex
	value T
}

// NewSetting returns a Setting holding defaults until loaded.
func NewSetting[T any](medium kv.Medium, key string, defaults T, log *zap.Logger) *Setting[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Setting[T]{medium: medium, key: key, defaults: defaults, value: defaults, log: log.With(zap.String("key", key))}
}

// Key returns the medium key.
func (s *Setting[T]) Key() string { return s.key }

// Load reads the value. A missing key seeds and persists the defaults; an
// unreadable or malformed value falls back to the defaults with a warning.
func (s *Setting[T]) Load(ctx context.Context) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok, err := s.medium.Get(ctx, s.key)
	switch {
	case err != nil:
		s.value = s.defaults
		s.log.Warn("cannot read setting, using defaults", zap.Error(err))
		return s.value, &PersistenceError{Key: s.key, Op: "load", Err: err}
	case !ok:
		s.value = s.defaults
		return s.value, s.persist(ctx)
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.value = s.defaults
		s.log.Warn("malformed setting, using defaults", zap.Error(err))
		return s.value, fmt.Errorf("%w: %s: %v", ErrCorruptSnapshot, s.key, err)
	}
	s.value = v
	return v, nil
}

// Get returns the current value.
func (s *Setting[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Save replaces and persists the value.
func (s *Setting[T]) Save(ctx context.Context, v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	return s.persist(ctx)
}

// Drop restores the defaults in memory and removes the key.
func (s *Setting[T]) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = s.defaults
	if err := s.medium.Remove(ctx, s.key); err != nil {
		return &PersistenceError{Key: s.key, Op: "drop", Err: err}
	}
	return nil
}

func (s *Setting[T]) persist(ctx context.Context) error {
	b, err := json.Marshal(s.value)
	if err != nil {
		return &PersistenceError{Key: s.key, Op: "encode", Err: err}
	}
	if err := s.medium.Set(ctx, s.key, string(b)); err != nil {
		return &PersistenceError{Key: s.key, Op: "save", Err: err}
	}
	return nil
}
