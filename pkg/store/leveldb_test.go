package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestLevelStore(t *testing.T, opts Options) *LevelStore {
	t.Helper()

	s, err := NewLevelStore(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("Failed to open leveldb store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLevelStore_GetSet(t *testing.T) {
	s := newTestLevelStore(t, DefaultOptions())
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
		t.Error("policy state must round-trip through the on-disk encoding")
	}
	if got.Headers.Get("Content-Type") != "application/xml" {
		t.Errorf("Content-Type = %q, want application/xml", got.Headers.Get("Content-Type"))
	}
}

func TestLevelStore_TTLExpiry(t *testing.T) {
	s := newTestLevelStore(t, DefaultOptions())
	ctx := context.Background()
	entry := testEntry(t, "http://example.com/doc.xml", "<doc/>")

	if err := s.Set(ctx, entry.Key, entry, 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := s.Get(ctx, entry.Key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after TTL: error = %v, want ErrCacheMiss", err)
	}
}

func TestLevelStore_MalformedRecord(t *testing.T) {
	s := newTestLevelStore(t, DefaultOptions())
	ctx := context.Background()
	key := "http://example.com/doc.xml"

	// write garbage under the namespaced key directly
	if err := s.db.Put([]byte(s.opts.namespaced(key)), []byte("not json"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := s.Get(ctx, key); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("Get of malformed record: error = %v, want ErrInvalidEntry", err)
	}
	// malformed records are dropped so the next read is a plain miss
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("second Get: error = %v, want ErrCacheMiss", err)
	}
}

func TestLevelStore_Delete(t *testing.T) {
	s := newTestLevelStore(t, DefaultOptions())
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

func TestLevelStore_Clear(t *testing.T) {
	s := newTestLevelStore(t, DefaultOptions())
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

func TestLevelStore_MaxEntriesEviction(t *testing.T) {
	s := newTestLevelStore(t, Options{Namespace: "test", MaxEntries: 2})
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

func TestLevelStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	entry := testEntry(t, "http://example.com/doc.xml", "<doc/>")

	s, err := NewLevelStore(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to open leveldb store: %v", err)
	}
	if err := s.Set(ctx, entry.Key, entry, time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewLevelStore(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to reopen leveldb store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, entry.Key)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got.Body) != "<doc/>" {
		t.Errorf("Body = %q, want <doc/>", got.Body)
	}
}
