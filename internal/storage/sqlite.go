package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"presupuesto/internal/session"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the session entries and the KV in a local database
// file, so a credential survives process restarts until it expires.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Ensure interface conformance
var (
	_ session.Store = (*SQLiteStore)(nil)
	_ session.KV    = (*SQLiteStore)(nil)
)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := SessionMigrations().Up(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate session store: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// WithClock overrides the time source used for expiry checks.
func (s *SQLiteStore) WithClock(now func() time.Time) *SQLiteStore {
	s.now = now
	return s
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Get returns the named entry, preferring the root path scope.
func (s *SQLiteStore) Get(ctx context.Context, name string) (session.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, path, value, expires_at FROM entries
		WHERE name = ? AND (expires_at = 0 OR expires_at > ?)
		ORDER BY CASE WHEN path = '/' THEN 0 ELSE 1 END, path
		LIMIT 1`, name, s.now().UnixNano())

	var (
		e       session.Entry
		expires int64
	)
	if err := row.Scan(&e.Name, &e.Path, &e.Value, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Entry{}, false, nil
		}
		return session.Entry{}, false, fmt.Errorf("get entry %s: %w", name, err)
	}
	e.ExpiresAt = fromUnix(expires)
	return e, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, e session.Entry) error {
	if e.Name == "" {
		return session.ErrEmptyName
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (name, path, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name, path) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		e.Name, e.Path, e.Value, toUnix(e.ExpiresAt), s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("set entry %s: %w", e.Name, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, name, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE name = ? AND path = ?`, name, path); err != nil {
		return fmt.Errorf("delete entry %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) Entries(ctx context.Context) ([]session.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, path, value, expires_at FROM entries
		WHERE expires_at = 0 OR expires_at > ?
		ORDER BY name, path`, s.now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []session.Entry
	for rows.Next() {
		var (
			e       session.Entry
			expires int64
		)
		if err := rows.Scan(&e.Name, &e.Path, &e.Value, &expires); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.ExpiresAt = fromUnix(expires)
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeExpired removes expired rows and returns how many were removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE expires_at != 0 AND expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge expired entries: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.DebugContext(ctx, "Purged expired session entries", "count", n)
	}
	return n, nil
}

func (s *SQLiteStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get value %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLiteStore) SetValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set value %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear kv: %w", err)
	}
	return nil
}
