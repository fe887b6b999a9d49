package storage

import (
	"context"
	"fmt"
	"log/slog"

	"presupuesto/internal/session"
	"presupuesto/internal/storage/memory"
)

// BackendType represents the type of session backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	RedisBackend  BackendType = "redis"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, RedisBackend:
		return true
	default:
		return false
	}
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Redis specific
	RedisAddr   string
	RedisPrefix string
}

// CleanupFunc releases backend resources
type CleanupFunc func() error

// Backend is a store that also serves as the durable KV
type Backend interface {
	session.Store
	session.KV
}

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Open creates the session backend selected by config
func Open(ctx context.Context, config Config, logger *slog.Logger) (*BackendResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !config.Type.IsValid() {
		return nil, fmt.Errorf("invalid session backend type: %s", config.Type)
	}

	switch config.Type {
	case SQLiteBackend:
		store, err := NewSQLiteStore(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		if _, err := store.PurgeExpired(ctx); err != nil {
			logger.Warn("Failed to purge expired session entries", "error", err)
		}
		logger.Debug("Initialized SQLite session backend", "db_path", config.SQLiteDBPath)
		return &BackendResult{Backend: store, Cleanup: store.Close}, nil
	case RedisBackend:
		store, err := NewRedisStore(ctx, config.RedisAddr, config.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis store: %w", err)
		}
		logger.Debug("Initialized Redis session backend", "addr", config.RedisAddr)
		return &BackendResult{Backend: store, Cleanup: store.Close}, nil
	default:
		logger.Debug("Initialized memory session backend")
		return &BackendResult{Backend: memory.New()}, nil
	}
}
