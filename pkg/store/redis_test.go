package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis instance and skips the test when
// none is available. The CI integration suite under tests/integration runs
// the same backend against a containerized Redis.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil client")
		}
	}()
	NewRedisStore(nil, DefaultOptions())
}

func TestRedisStore_GetSet(t *testing.T) {
	s := NewRedisStore(setupTestRedis(t), Options{Namespace: "test", MaxEntries: 100})
	ctx := context.Background()
	entry := testEntry(t, "http://example.com/doc.xml", "<doc/>")

	if _, err := s.Get(ctx, entry.Key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get before Set: error = %v, want ErrCacheMiss", err)
	}

	if err := s.Set(ctx, entry.Key, entry, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get(ctx, entry.Key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Body) != "<doc/>" {
		t.Errorf("Body = %q, want <doc/>", got.Body)
	}
	if got.Policy == nil || got.Policy.Status != 200 {
		t.Error("policy state must round-trip through the wire encoding")
	}
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	s := NewRedisStore(setupTestRedis(t), Options{Namespace: "test"})
	ctx := context.Background()
	entry := testEntry(t, "http://example.com/doc.xml", "<doc/>")

	if err := s.Set(ctx, entry.Key, entry, 50*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, err := s.Get(ctx, entry.Key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after TTL: error = %v, want ErrCacheMiss", err)
	}
}

func TestRedisStore_MalformedRecord(t *testing.T) {
	client := setupTestRedis(t)
	s := NewRedisStore(client, Options{Namespace: "test"})
	ctx := context.Background()
	key := "http://example.com/doc.xml"

	if err := client.Set(ctx, s.opts.namespaced(key), "not json", 0).Err(); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := s.Get(ctx, key); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("Get of malformed record: error = %v, want ErrInvalidEntry", err)
	}
	// malformed records are dropped so the next read is a plain miss
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("second Get: error = %v, want ErrCacheMiss", err)
	}
}

func TestRedisStore_Delete(t *testing.T) {
	s := NewRedisStore(setupTestRedis(t), Options{Namespace: "test"})
	ctx := context.Background()
	entry := testEntry(t, "http://example.com/doc.xml", "<doc/>")

	if err := s.Set(ctx, entry.Key, entry, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Delete(ctx, entry.Key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, entry.Key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after Delete: error = %v, want ErrCacheMiss", err)
	}
}

func TestRedisStore_Clear(t *testing.T) {
	s := NewRedisStore(setupTestRedis(t), Options{Namespace: "test"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("http://example.com/doc-%d.xml", i)
		if err := s.Set(ctx, key, testEntry(t, key, "<doc/>"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("http://example.com/doc-%d.xml", i)
		if _, err := s.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get(%s) after Clear: error = %v, want ErrCacheMiss", key, err)
		}
	}
}

func TestRedisStore_MaxEntriesEviction(t *testing.T) {
	s := NewRedisStore(setupTestRedis(t), Options{Namespace: "test", MaxEntries: 2})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("http://example.com/doc-%d.xml", i)
		entry := testEntry(t, key, "<doc/>")
		entry.StoredAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := s.Set(ctx, key, entry, time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		key := fmt.Sprintf("http://example.com/doc-%d.xml", i)
		if _, err := s.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("oldest entry %s should have been evicted, error = %v", key, err)
		}
	}
	for i := 2; i < 4; i++ {
		key := fmt.Sprintf("http://example.com/doc-%d.xml", i)
		if _, err := s.Get(ctx, key); err != nil {
			t.Errorf("newest entry %s should survive eviction: %v", key, err)
		}
	}
}

func TestRedisStore_TrimIgnoresExpiredMembers(t *testing.T) {
	s := NewRedisStore(setupTestRedis(t), Options{Namespace: "test", MaxEntries: 2})
	ctx := context.Background()

	// oldest member, long-lived
	keepOld := "http://example.com/keep-old.xml"
	if err := s.Set(ctx, keepOld, testEntry(t, keepOld, "<doc/>"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// newer member whose value expires via its native TTL, leaving a dead
	// index member behind
	dead := "http://example.com/dead.xml"
	deadEntry := testEntry(t, dead, "<doc/>")
	deadEntry.StoredAt = time.Now().Add(time.Second)
	if err := s.Set(ctx, dead, deadEntry, 50*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	keepNew := "http://example.com/keep-new.xml"
	keepNewEntry := testEntry(t, keepNew, "<doc/>")
	keepNewEntry.StoredAt = time.Now().Add(2 * time.Second)
	if err := s.Set(ctx, keepNew, keepNewEntry, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// the dead member is pruned instead of pushing the oldest live entry out
	if _, err := s.Get(ctx, keepOld); err != nil {
		t.Errorf("live entry evicted in favor of a dead index member: %v", err)
	}
	if _, err := s.Get(ctx, keepNew); err != nil {
		t.Errorf("newest entry must be present: %v", err)
	}
	if card, err := s.client.ZCard(ctx, s.indexKey()).Result(); err != nil || card != 2 {
		t.Errorf("index cardinality = %d (err %v), want 2 after pruning", card, err)
	}
}

func TestRedisStore_NamespaceIsolation(t *testing.T) {
	client := setupTestRedis(t)
	a := NewRedisStore(client, Options{Namespace: "a"})
	b := NewRedisStore(client, Options{Namespace: "b"})
	ctx := context.Background()
	entry := testEntry(t, "http://example.com/doc.xml", "<doc/>")

	if err := a.Set(ctx, entry.Key, entry, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := b.Get(ctx, entry.Key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("namespaces must be isolated, got error %v", err)
	}
}
