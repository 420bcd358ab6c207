package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const levelBackend = "leveldb"

// levelRecord wraps an entry with its expiry deadline, since LevelDB has no
// native TTL. A zero deadline means no expiry.
type levelRecord struct {
	Entry    *Entry    `json:"entry"`
	Deadline time.Time `json:"deadline"`
}

// LevelStore persists entries in a LevelDB database on disk. Expired
// records are dropped lazily on read; the entry bound is enforced on write
// by evicting the oldest entries first.
type LevelStore struct {
	db   *leveldb.DB
	opts Options

	// serializes writes so capacity eviction sees a consistent view
	mu sync.Mutex
}

// NewLevelStore opens (or creates) a LevelDB database at path.
func NewLevelStore(path string, opts Options) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultOptions().Namespace
	}
	return &LevelStore{db: db, opts: opts}, nil
}

// Close closes the underlying database.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

// Get retrieves the entry for key, dropping it if expired or undecodable.
func (s *LevelStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.db.Get([]byte(s.opts.namespaced(key)), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			storeMisses.WithLabelValues(levelBackend).Inc()
			return nil, ErrCacheMiss
		}
		storeErrors.WithLabelValues(levelBackend, "get").Inc()
		return nil, fmt.Errorf("leveldb get: %w", err)
	}

	var rec levelRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		_ = s.Delete(ctx, key)
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if err := rec.Entry.Validate(); err != nil {
		_ = s.Delete(ctx, key)
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if !rec.Deadline.IsZero() && time.Now().After(rec.Deadline) {
		_ = s.Delete(ctx, key)
		storeMisses.WithLabelValues(levelBackend).Inc()
		return nil, ErrCacheMiss
	}

	storeHits.WithLabelValues(levelBackend).Inc()
	return rec.Entry, nil
}

// Set writes a complete replacement record for key.
func (s *LevelStore) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	if err := entry.Validate(); err != nil {
		storeErrors.WithLabelValues(levelBackend, "set").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	rec := levelRecord{Entry: entry}
	if effective := s.opts.effectiveTTL(ttl); effective > 0 {
		rec.Deadline = time.Now().Add(effective)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		storeErrors.WithLabelValues(levelBackend, "set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put([]byte(s.opts.namespaced(key)), data, nil); err != nil {
		storeErrors.WithLabelValues(levelBackend, "set").Inc()
		return fmt.Errorf("leveldb put: %w", err)
	}
	storeWrittenBytes.WithLabelValues(levelBackend).Add(float64(len(data)))
	return s.evictLocked()
}

// evictLocked removes the oldest entries while the namespace exceeds
// MaxEntries. Callers must hold mu.
func (s *LevelStore) evictLocked() error {
	if s.opts.MaxEntries <= 0 {
		return nil
	}

	type aged struct {
		key      []byte
		storedAt time.Time
	}
	var entries []aged

	it := s.db.NewIterator(util.BytesPrefix([]byte(s.opts.Namespace+":")), nil)
	for it.Next() {
		var rec levelRecord
		key := append([]byte(nil), it.Key()...)
		if err := json.Unmarshal(it.Value(), &rec); err != nil || rec.Entry == nil {
			// unreadable records are evicted first
			entries = append(entries, aged{key: key})
			continue
		}
		entries = append(entries, aged{key: key, storedAt: rec.Entry.StoredAt})
	}
	it.Release()
	if err := it.Error(); err != nil {
		storeErrors.WithLabelValues(levelBackend, "set").Inc()
		return fmt.Errorf("leveldb iterate: %w", err)
	}

	excess := len(entries) - s.opts.MaxEntries
	if excess <= 0 {
		return nil
	}

	batch := new(leveldb.Batch)
	for i := 0; i < excess; i++ {
		oldest := -1
		for j := range entries {
			if entries[j].key == nil {
				continue
			}
			if oldest == -1 || entries[j].storedAt.Before(entries[oldest].storedAt) {
				oldest = j
			}
		}
		if oldest == -1 {
			break
		}
		batch.Delete(entries[oldest].key)
		entries[oldest].key = nil
		storeEvictions.WithLabelValues(levelBackend).Inc()
	}
	if err := s.db.Write(batch, nil); err != nil {
		storeErrors.WithLabelValues(levelBackend, "set").Inc()
		return fmt.Errorf("leveldb evict: %w", err)
	}
	return nil
}

// Delete removes the entry for key.
func (s *LevelStore) Delete(ctx context.Context, key string) error {
	if err := s.db.Delete([]byte(s.opts.namespaced(key)), nil); err != nil {
		storeErrors.WithLabelValues(levelBackend, "delete").Inc()
		return fmt.Errorf("leveldb delete: %w", err)
	}
	return nil
}

// Clear removes every entry in this store's namespace.
func (s *LevelStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	it := s.db.NewIterator(util.BytesPrefix([]byte(s.opts.Namespace+":")), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		storeErrors.WithLabelValues(levelBackend, "clear").Inc()
		return fmt.Errorf("leveldb iterate: %w", err)
	}
	if err := s.db.Write(batch, nil); err != nil {
		storeErrors.WithLabelValues(levelBackend, "clear").Inc()
		return fmt.Errorf("leveldb clear: %w", err)
	}
	return nil
}
