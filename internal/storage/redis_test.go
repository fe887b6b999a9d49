package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"presupuesto/internal/session"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, "test:")
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStoreEntries(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	_ = store.Set(ctx, session.Entry{Name: session.ProviderSessionKey, Value: "s", Path: ""})
	_ = store.Set(ctx, session.Entry{Name: session.TokenKey, Value: "t", Path: "/"})

	e, ok, err := store.Get(ctx, session.TokenKey)
	if err != nil || !ok || e.Value != "t" {
		t.Fatalf("Get = %+v ok=%v err=%v", e, ok, err)
	}
	e, ok, _ = store.Get(ctx, session.ProviderSessionKey)
	if !ok || e.Path != "" {
		t.Fatalf("expected empty-path entry, got %+v ok=%v", e, ok)
	}

	entries, err := store.Entries(ctx)
	if err != nil || len(entries) != 2 {
		t.Fatalf("Entries = %v err=%v", entries, err)
	}
	if entries[0].Name != session.ProviderSessionKey || entries[1].Name != session.TokenKey {
		t.Errorf("unexpected ordering %v", entries)
	}

	_ = store.Delete(ctx, session.TokenKey, "/")
	if _, ok, _ := store.Get(ctx, session.TokenKey); ok {
		t.Fatal("expected token deleted")
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	expires := time.Now().Add(time.Hour)
	_ = store.Set(ctx, session.Entry{Name: session.TokenKey, Value: "t", Path: "/", ExpiresAt: expires})

	e, ok, _ := store.Get(ctx, session.TokenKey)
	if !ok || e.ExpiresAt.UnixNano() != expires.UnixNano() {
		t.Fatalf("expected expiry round trip, got %+v", e)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, _ := store.Get(ctx, session.TokenKey); ok {
		t.Fatal("expected key to expire")
	}
}

func TestRedisStoreSetInPastDeletes(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	_ = store.Set(ctx, session.Entry{Name: session.TokenKey, Value: "t", Path: "/"})
	_ = store.Set(ctx, session.Entry{Name: session.TokenKey, Value: "t", Path: "/", ExpiresAt: time.Now().Add(-time.Second)})
	if _, ok, _ := store.Get(ctx, session.TokenKey); ok {
		t.Fatal("expected entry with past expiry to be removed")
	}
}

func TestRedisStoreKV(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	_ = store.SetValue(ctx, "language", "es")
	if v, ok, _ := store.GetValue(ctx, "language"); !ok || v != "es" {
		t.Fatalf("GetValue = %q ok=%v", v, ok)
	}
	_ = store.Clear(ctx)
	if _, ok, err := store.GetValue(ctx, "language"); ok || err != nil {
		t.Fatalf("expected cleared KV, ok=%v err=%v", ok, err)
	}
}
