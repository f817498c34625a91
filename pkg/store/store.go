// Package store persists trading state between restarts. Two backends are
// provided: JSON files with atomic replace, and Redis.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Well-known state keys.
const (
	KeyPositions   = "active_positions"
	KeyPerformance = "performance_data"
	KeyWeights     = "setup_weights"
	KeyParameters  = "optimized_parameters"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("state key not found")

// PersistenceError wraps a backend failure for a specific key.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %q: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store is a small keyed JSON document store.
type Store interface {
	// Get decodes the value stored under key into v. Returns ErrNotFound
	// when the key is absent.
	Get(ctx context.Context, key string, v any) error
	// Set encodes v and stores it under key, replacing any previous value.
	Set(ctx context.Context, key string, v any) error
}
