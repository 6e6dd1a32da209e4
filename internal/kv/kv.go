// Package kv defines the local persisted key-value store that survives
// restarts. Keys are plain strings; callers scope them (by origin and
// namespace) themselves.
package kv

import (
	"context"
	"errors"
)

// Common errors.
var (
	ErrNotFound    = errors.New("kv: key not found")
	ErrStoreClosed = errors.New("kv store is closed")
)

// Store is a synchronous string-keyed store.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close closes the store.
	Close() error
}
