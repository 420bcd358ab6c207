// Package store provides the persistent key/value backends for cached
// responses.
//
// Entries are keyed by request URL, namespace-isolated, carry a TTL equal
// to the response's computed freshness lifetime, and are bounded by a
// maximum entry count with oldest-first eviction. Entries are never mutated
// in place: every update is a full replacement, so readers either see the
// previous complete entry or the new one.
//
// # Backends
//
//   - RedisStore: Redis with native TTL expiry (production)
//   - LevelStore: on-disk LevelDB with lazy expiry (single-process)
//   - MemoryStore: in-process map (tests and examples)
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := store.NewRedisStore(redisClient, store.Options{
//		Namespace:  "myapp",
//		MaxEntries: 500,
//	})
//
//	entry, err := s.Get(ctx, url)
//	if errors.Is(err, store.ErrCacheMiss) {
//		// fetch from origin
//	}
//
// # Error Contract
//
// Every failure mode a caller can hit degrades to a miss: absent and
// expired keys return ErrCacheMiss, and records that cannot be decoded or
// fail validation are deleted and reported as ErrInvalidEntry so the next
// successful fetch overwrites them.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - fetchcache_store_hits_total{backend} - store hits
//   - fetchcache_store_misses_total{backend} - store misses
//   - fetchcache_store_errors_total{backend,operation} - operation errors
//   - fetchcache_store_written_bytes_total{backend} - bytes written
//   - fetchcache_store_evictions_total{backend} - capacity evictions
package store
