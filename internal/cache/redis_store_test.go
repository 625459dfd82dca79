package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bulkpress/internal/testutil"
)

func TestRedisStore(t *testing.T) {
	client := testutil.TestRedis(t)
	ctx := context.Background()

	prefix := fmt.Sprintf("bulkpress:test:%d:", time.Now().UnixNano())
	store := NewRedisStoreFromClient(client, prefix)

	m, err := NewManager(Options{LocalSize: 8, Shared: store})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if err := m.Put(ctx, "content:coffee:1", []byte("body"), time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := m.Put(ctx, "research:coffee:2", []byte("ctx"), time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	raw, err := store.Get(ctx, "content:coffee:1")
	if err != nil || raw == nil {
		t.Fatalf("store.Get() = %v, %v; want envelope", raw, err)
	}
	if missing, err := store.Get(ctx, "nope"); err != nil || missing != nil {
		t.Errorf("store.Get(missing) = %v, %v; want nil, nil", missing, err)
	}

	// A fresh manager reads through to Redis.
	reader, _ := NewManager(Options{LocalSize: 8, Shared: store})
	if got, ok := reader.Get(ctx, "content:coffee:1"); !ok || string(got) != "body" {
		t.Errorf("reader.Get() = %q, %v", got, ok)
	}

	n, err := reader.Invalidate(ctx, "content:*")
	if err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Invalidate() = %d, want 1", n)
	}
	if raw, _ := store.Get(ctx, "content:coffee:1"); raw != nil {
		t.Error("content entry still in redis")
	}
	if raw, _ := store.Get(ctx, "research:coffee:2"); raw == nil {
		t.Error("research entry should remain in redis")
	}

	t.Cleanup(func() {
		store.DeleteMatching(context.Background(), "*")
	})
}
