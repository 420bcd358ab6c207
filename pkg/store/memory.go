package store

import (
	"context"
	"sync"
	"time"
)

const memoryBackend = "memory"

type memoryRecord struct {
	entry    *Entry
	deadline time.Time
}

// MemoryStore is an in-process Store for tests, examples, and deployments
// without a persistent backend. Expired records are dropped lazily on read.
type MemoryStore struct {
	mu   sync.RWMutex
	db   map[string]memoryRecord
	opts Options
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts Options) *MemoryStore {
	if opts.Namespace == "" {
		opts.Namespace = DefaultOptions().Namespace
	}
	return &MemoryStore{
		db:   make(map[string]memoryRecord),
		opts: opts,
	}
}

// Get retrieves the entry for key, or ErrCacheMiss.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	rec, ok := s.db[s.opts.namespaced(key)]
	s.mu.RUnlock()
	if !ok {
		storeMisses.WithLabelValues(memoryBackend).Inc()
		return nil, ErrCacheMiss
	}
	if !rec.deadline.IsZero() && time.Now().After(rec.deadline) {
		_ = s.Delete(ctx, key)
		storeMisses.WithLabelValues(memoryBackend).Inc()
		return nil, ErrCacheMiss
	}
	if err := rec.entry.Validate(); err != nil {
		_ = s.Delete(ctx, key)
		return nil, ErrInvalidEntry
	}
	storeHits.WithLabelValues(memoryBackend).Inc()
	return rec.entry, nil
}

// Set writes a complete replacement entry under key.
func (s *MemoryStore) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	if err := entry.Validate(); err != nil {
		storeErrors.WithLabelValues(memoryBackend, "set").Inc()
		return ErrInvalidEntry
	}
	rec := memoryRecord{entry: entry}
	if effective := s.opts.effectiveTTL(ttl); effective > 0 {
		rec.deadline = time.Now().Add(effective)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.db[s.opts.namespaced(key)] = rec
	s.evictLocked()
	return nil
}

// evictLocked drops the oldest entries while over MaxEntries.
// Callers must hold mu.
func (s *MemoryStore) evictLocked() {
	if s.opts.MaxEntries <= 0 {
		return
	}
	for len(s.db) > s.opts.MaxEntries {
		var oldestKey string
		var oldestAt time.Time
		for key, rec := range s.db {
			if oldestKey == "" || rec.entry.StoredAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = rec.entry.StoredAt
			}
		}
		delete(s.db, oldestKey)
		storeEvictions.WithLabelValues(memoryBackend).Inc()
	}
}

// Delete removes the entry for key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.db, s.opts.namespaced(key))
	return nil
}

// Clear removes every entry.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db = make(map[string]memoryRecord)
	return nil
}

// Len reports the current entry count. Used by tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.db)
}
