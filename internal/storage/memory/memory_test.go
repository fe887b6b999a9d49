package memory

import (
	"context"
	"testing"
	"time"

	"presupuesto/internal/session"
)

func TestStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.Set(ctx, session.Entry{Name: "token", Value: "a", Path: ""}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, session.Entry{Name: "token", Value: "b", Path: "/"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	e, ok, err := s.Get(ctx, "token")
	if err != nil || !ok || e.Value != "b" {
		t.Fatalf("expected root path entry, got %+v ok=%v err=%v", e, ok, err)
	}

	_ = s.Delete(ctx, "token", "/")
	e, ok, _ = s.Get(ctx, "token")
	if !ok || e.Value != "a" {
		t.Fatalf("expected empty path entry to remain, got %+v ok=%v", e, ok)
	}

	_ = s.Delete(ctx, "token", "")
	_ = s.Delete(ctx, "token", "")
	if _, ok, _ := s.Get(ctx, "token"); ok {
		t.Fatal("expected token to be gone")
	}
	if s.Deletes() != 2 {
		t.Errorf("Deletes() = %d, want 2", s.Deletes())
	}
}

func TestStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return now })

	_ = s.Set(ctx, session.Entry{Name: "token", Value: "v", Path: "/", ExpiresAt: now.Add(time.Hour)})
	if _, ok, _ := s.Get(ctx, "token"); !ok {
		t.Fatal("expected live entry")
	}

	now = now.Add(time.Hour)
	if _, ok, _ := s.Get(ctx, "token"); ok {
		t.Fatal("expected entry to expire at its expiry time")
	}
	entries, _ := s.Entries(ctx)
	if len(entries) != 0 {
		t.Fatalf("expected no live entries, got %v", entries)
	}
}

func TestStoreRejectsEmptyName(t *testing.T) {
	if err := New().Set(context.Background(), session.Entry{}); err != session.ErrEmptyName {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestStoreKV(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.SetValue(ctx, "currency", "GTQ")
	if v, ok, _ := s.GetValue(ctx, "currency"); !ok || v != "GTQ" {
		t.Fatalf("unexpected value %q ok=%v", v, ok)
	}
	_ = s.Clear(ctx)
	if _, ok, _ := s.GetValue(ctx, "currency"); ok {
		t.Fatal("expected KV to be cleared")
	}
}
