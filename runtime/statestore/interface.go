// Package statestore provides the process-wide, session-scoped state store
// used by stateful nodes: a concurrent-safe mapping from (node_id,
// session_id) to opaque per-node state, with TTL and capacity eviction.
package statestore

import (
	"context"
	"errors"
	"time"
)

// Key identifies one state entry, scoped to a single node within a single
// session. Entries for one session are never visible to another.
type Key struct {
	NodeID    string
	SessionID string
}

// Store is the interface every state store backend implements.
type Store interface {
	// GetOrInit returns the current value for key, or calls init and stores
	// its result if no entry exists yet. Accessing an entry refreshes its
	// last-accessed time for TTL purposes.
	GetOrInit(ctx context.Context, key Key, ttl time.Duration, init func() ([]byte, error)) ([]byte, error)

	// Update reads the current value (nil if absent), passes it to fn, and
	// stores fn's return value. Refreshes last-accessed time.
	Update(ctx context.Context, key Key, ttl time.Duration, fn func(current []byte) ([]byte, error)) error

	// Get returns the current value for key and whether it exists.
	Get(ctx context.Context, key Key) ([]byte, bool, error)

	// Remove deletes a single entry.
	Remove(ctx context.Context, key Key) error

	// RemoveSession atomically removes every entry belonging to sessionID,
	// across all node IDs. Called eagerly on session teardown.
	RemoveSession(ctx context.Context, sessionID string) error

	// Close shuts the store down, stopping any background sweep and
	// releasing backend resources (e.g. a Redis connection pool).
	Close() error
}

// ErrNotFound is returned when a requested state entry doesn't exist.
var ErrNotFound = errors.New("statestore: entry not found")

// ErrInvalidKey is returned when a Key has an empty NodeID or SessionID.
var ErrInvalidKey = errors.New("statestore: node id and session id must not be empty")

// ErrClosed is returned by operations on a store that has been Closed.
var ErrClosed = errors.New("statestore: store is closed")
