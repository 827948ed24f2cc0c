package kvstore

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-gate/internal/errors"
)

// DefaultCleanupInterval is how often the background cleanup runs.
const DefaultCleanupInterval = 5 * time.Minute

// NowTimeFunc can be replaced in tests to control entry expiry.
var NowTimeFunc = time.Now

// timedEntry wraps a value with its expiry for TTL tracking.
type timedEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e *timedEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is a thread-safe in-memory implementation of Store. It is
// suitable for a single-instance deployment and for tests; a multi-instance
// deployment needs the Redis implementation so that the login redirect and
// its callback can be served by different processes.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*timedEntry

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewMemoryStore creates a memory store with a background cleanup goroutine.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries:     make(map[string]*timedEntry),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go s.cleanupLoop(DefaultCleanupInterval)
	return s
}

// Put stores value under key with the given TTL.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = NowTimeFunc().Add(ttl)
	}

	// Copy to prevent external modifications
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &timedEntry{value: stored, expiresAt: expiresAt}
	return nil
}

// Get retrieves the value stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || entry.expired(NowTimeFunc()) {
		return nil, errors.ErrNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// GetDel retrieves and removes the value under key in one critical section.
func (s *MemoryStore) GetDel(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, errors.ErrNotFound
	}
	delete(s.entries, key)

	if entry.expired(NowTimeFunc()) {
		return nil, errors.ErrNotFound
	}
	return entry.value, nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Ping always succeeds; the store lives in-process.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	<-s.cleanupDone
	return nil
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	defer close(s.cleanupDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) removeExpired() {
	now := NowTimeFunc()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
