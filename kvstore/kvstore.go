// Package kvstore abstracts the key-value store the gate coordinates through.
// All cross-request and cross-instance state (pending login states, sessions)
// lives here rather than in process memory, because the redirect and the
// callback of one login round-trip may land on different instances.
package kvstore

import (
	"context"
	"time"
)

// Store is a key-to-bytes store with optional per-key TTL.
//
// Misses are reported as errors.ErrNotFound; transport or availability
// failures wrap errors.ErrStoreUnavailable so callers can distinguish
// "no such key" from "the store is down".
type Store interface {
	// Put writes value under key. A zero ttl means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetDel returns the value stored under key and deletes it in one
	// atomic operation. A key is never returned twice.
	GetDel(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the store is reachable. Health checks use this
	// to surface a dead store before requests start failing.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
