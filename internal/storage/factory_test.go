package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestBackendTypeIsValid(t *testing.T) {
	for _, bt := range []BackendType{MemoryBackend, SQLiteBackend, RedisBackend} {
		if !bt.IsValid() {
			t.Errorf("%s should be valid", bt)
		}
	}
	if BackendType("cookies").IsValid() {
		t.Error("cookies should be invalid")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		config  Config
		wantErr bool
		cleanup bool
	}{
		{name: "memory", config: Config{Type: MemoryBackend}},
		{name: "sqlite", config: Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "s.db")}, cleanup: true},
		{name: "redis", config: Config{Type: RedisBackend, RedisAddr: mr.Addr(), RedisPrefix: "p:"}, cleanup: true},
		{name: "invalid", config: Config{Type: "nope"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Open(ctx, tt.config, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if res.Backend == nil {
				t.Fatal("expected backend")
			}
			if (res.Cleanup != nil) != tt.cleanup {
				t.Errorf("cleanup presence = %v, want %v", res.Cleanup != nil, tt.cleanup)
			}
			if res.Cleanup != nil {
				_ = res.Cleanup()
			}
		})
	}
}
