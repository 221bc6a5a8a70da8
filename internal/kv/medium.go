// Package kv provides the string keyed persistence media behind the entity
// stores: an in-memory map, a directory of JSON files, an S3 bucket and a
// remote HTTP host. SQL backed media live in the repository package.
package kv

import (
	"context"
	"errors"
	"strings"
)

// ErrQuotaExceeded is returned by a quota limited medium when a write would
// push its total size past the limit.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Medium is a synchronous string keyed store. Values are JSON encoded UTF-8
// text; binary payloads are base64 encoded by the caller.
type Medium interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Keys lists the stored keys beginning with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Namespace builds the persisted key of a collection, e.g. "recipes_mealPlans".
func Namespace(app, kind string) string {
	return strings.ToLower(app) + "_" + kind
}
