// Package kv defines the local key-value store that backs the result
// cache, the pending write queue and the governor's call window.
package kv

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when no value is stored under a key.
var ErrNotFound = errors.New("kv: key not found")

// Store is a byte-valued key-value store addressed by composite keys.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key that starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases the backing resources.
	Close() error
}

// Key joins parts into a composite key separated by colons.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
