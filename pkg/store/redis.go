package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisBackend = "redis"

// RedisStore persists entries in Redis with native TTL expiry. The entry
// count bound is enforced through a per-namespace sorted set indexed by
// write time, trimmed oldest-first.
type RedisStore struct {
	client *redis.Client
	opts   Options
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, opts Options) *RedisStore {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultOptions().Namespace
	}
	return &RedisStore{client: client, opts: opts}
}

func (s *RedisStore) indexKey() string {
	return s.opts.Namespace + ":index"
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or has expired, and
// ErrInvalidEntry (after deleting the record) if it cannot be decoded.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.opts.namespaced(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			storeMisses.WithLabelValues(redisBackend).Inc()
			return nil, ErrCacheMiss
		}
		storeErrors.WithLabelValues(redisBackend, "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = s.Delete(ctx, key)
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if err := entry.Validate(); err != nil {
		_ = s.Delete(ctx, key)
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	storeHits.WithLabelValues(redisBackend).Inc()
	return &entry, nil
}

// Set stores a complete replacement entry under key. Expiry is delegated to
// Redis via the effective TTL.
func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	if err := entry.Validate(); err != nil {
		storeErrors.WithLabelValues(redisBackend, "set").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		storeErrors.WithLabelValues(redisBackend, "set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.client.Set(ctx, s.opts.namespaced(key), data, s.opts.effectiveTTL(ttl)).Err(); err != nil {
		storeErrors.WithLabelValues(redisBackend, "set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	storeWrittenBytes.WithLabelValues(redisBackend).Add(float64(len(data)))

	if err := s.client.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(entry.StoredAt.UnixMilli()),
		Member: key,
	}).Err(); err != nil {
		storeErrors.WithLabelValues(redisBackend, "set").Inc()
		return fmt.Errorf("redis index add: %w", err)
	}

	return s.trim(ctx)
}

// trim evicts the oldest entries while the namespace exceeds MaxEntries.
// Index members whose value already expired via its native TTL are pruned
// first, so dead members never push live entries out.
func (s *RedisStore) trim(ctx context.Context) error {
	if s.opts.MaxEntries <= 0 {
		return nil
	}
	count, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		storeErrors.WithLabelValues(redisBackend, "set").Inc()
		return fmt.Errorf("redis index card: %w", err)
	}
	if int(count) <= s.opts.MaxEntries {
		return nil
	}

	// ZRange is score-ascending, so members come back oldest first
	members, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		storeErrors.WithLabelValues(redisBackend, "set").Inc()
		return fmt.Errorf("redis index range: %w", err)
	}

	var live []string
	for _, key := range members {
		exists, err := s.client.Exists(ctx, s.opts.namespaced(key)).Result()
		if err != nil {
			storeErrors.WithLabelValues(redisBackend, "set").Inc()
			return fmt.Errorf("redis exists: %w", err)
		}
		if exists == 0 {
			_ = s.client.ZRem(ctx, s.indexKey(), key).Err()
			continue
		}
		live = append(live, key)
	}

	excess := len(live) - s.opts.MaxEntries
	if excess <= 0 {
		return nil
	}
	for _, key := range live[:excess] {
		_ = s.client.Del(ctx, s.opts.namespaced(key)).Err()
		_ = s.client.ZRem(ctx, s.indexKey(), key).Err()
		storeEvictions.WithLabelValues(redisBackend).Inc()
	}
	return nil
}

// Delete removes the entry for key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.opts.namespaced(key)).Err(); err != nil {
		storeErrors.WithLabelValues(redisBackend, "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	if err := s.client.ZRem(ctx, s.indexKey(), key).Err(); err != nil {
		storeErrors.WithLabelValues(redisBackend, "delete").Inc()
		return fmt.Errorf("redis index rem: %w", err)
	}
	return nil
}

// Clear removes every entry in this store's namespace.
func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		storeErrors.WithLabelValues(redisBackend, "clear").Inc()
		return fmt.Errorf("redis index range: %w", err)
	}
	for _, key := range keys {
		if err := s.client.Del(ctx, s.opts.namespaced(key)).Err(); err != nil {
			storeErrors.WithLabelValues(redisBackend, "clear").Inc()
			return fmt.Errorf("redis del: %w", err)
		}
	}
	if err := s.client.Del(ctx, s.indexKey()).Err(); err != nil {
		storeErrors.WithLabelValues(redisBackend, "clear").Inc()
		return fmt.Errorf("redis index del: %w", err)
	}
	return nil
}
