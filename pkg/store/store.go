package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fetchcache/fetchcache/pkg/policy"
)

var (
	// ErrCacheMiss indicates the requested key was not found or has expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a stored record could not be decoded or
	// failed validation. Callers treat it as a miss.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Entry is one cached response. Entries are immutable once stored; every
// update writes a complete replacement.
type Entry struct {
	// Key is the cache key, which is the request URL.
	Key string `json:"key"`

	// Body is the captured response body.
	Body []byte `json:"body"`

	// Size is the body length in bytes, captured separately because the
	// live byte stream is consumed once.
	Size int64 `json:"size"`

	// Headers is the stored response header snapshot.
	Headers http.Header `json:"headers"`

	// Policy is the caching-policy snapshot for this response.
	Policy *policy.State `json:"policy"`

	// StoredAt is when the entry was written.
	StoredAt time.Time `json:"stored_at"`
}

// NewEntry builds an Entry for the given key, body and policy state.
func NewEntry(key string, body []byte, headers http.Header, state *policy.State) *Entry {
	return &Entry{
		Key:      key,
		Body:     body,
		Size:     int64(len(body)),
		Headers:  headers.Clone(),
		Policy:   state,
		StoredAt: time.Now(),
	}
}

// Validate rejects structurally malformed entries at the store boundary.
func (e *Entry) Validate() error {
	if e == nil {
		return fmt.Errorf("entry is nil")
	}
	if e.Key == "" {
		return fmt.Errorf("entry key is empty")
	}
	if e.Policy == nil {
		return fmt.Errorf("entry has no policy state")
	}
	if e.Policy.Status == 0 {
		return fmt.Errorf("entry policy has no status")
	}
	if e.Size != int64(len(e.Body)) {
		return fmt.Errorf("entry size %d does not match body length %d", e.Size, len(e.Body))
	}
	return nil
}

// Store is the persistence contract consumed by the caching client.
//
// Get after Set within the TTL returns an entry structurally equal to what
// was stored; after the TTL elapses Get returns ErrCacheMiss. Backends
// enforce a maximum entry count with their own eviction; callers treat
// evicted keys as ordinary misses.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves the entry for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set writes a complete replacement entry under key. A ttl of zero
	// falls back to the backend's standard TTL (zero = no expiry).
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error

	// Delete removes the entry for key, if present.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry in the backend's namespace.
	Clear(ctx context.Context) error
}

// Options configures a store backend.
type Options struct {
	// Namespace isolates this store's keys from other users of the
	// backing medium.
	Namespace string

	// MaxEntries bounds the number of stored entries; the oldest entries
	// are evicted beyond it. Zero disables the bound.
	MaxEntries int

	// StandardTTL is used when an entry is written with a zero TTL
	// (storable by validator only). Zero means no expiry.
	StandardTTL time.Duration
}

// DefaultOptions returns a safe default store configuration.
func DefaultOptions() Options {
	return Options{
		Namespace:   "fetchcache",
		MaxEntries:  1000,
		StandardTTL: 0,
	}
}

func (o Options) effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return o.StandardTTL
	}
	return ttl
}

func (o Options) namespaced(key string) string {
	return o.Namespace + ":" + key
}
