// Package memory provides an in-process session store, used by tests and by
// SESSION_BACKEND=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"presupuesto/internal/session"
)

type entryKey struct {
	name string
	path string
}

type Store struct {
	mu      sync.Mutex
	entries map[entryKey]session.Entry
	kv      map[string]string
	now     func() time.Time

	writes  int
	deletes int
}

// Ensure interface conformance
var (
	_ session.Store = (*Store)(nil)
	_ session.KV    = (*Store)(nil)
)

func New() *Store {
	return &Store{
		entries: make(map[entryKey]session.Entry),
		kv:      make(map[string]string),
		now:     time.Now,
	}
}

// WithClock overrides the time source used for expiry checks.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// Get returns the named entry, preferring the root path scope.
func (s *Store) Get(_ context.Context, name string) (session.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[entryKey{name, session.RootPath}]; ok && !e.Expired(now) {
		return e, true, nil
	}
	for k, e := range s.entries {
		if k.name == name && !e.Expired(now) {
			return e, true, nil
		}
	}
	return session.Entry{}, false, nil
}

func (s *Store) Set(_ context.Context, e session.Entry) error {
	if e.Name == "" {
		return session.ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entryKey{e.Name, e.Path}] = e
	s.writes++
	return nil
}

// Delete is idempotent.
func (s *Store) Delete(_ context.Context, name, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := entryKey{name, path}
	if _, ok := s.entries[k]; ok {
		delete(s.entries, k)
		s.deletes++
	}
	return nil
}

// Entries returns every live entry ordered by name then path.
func (s *Store) Entries(_ context.Context) ([]session.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]session.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Expired(now) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

func (s *Store) GetValue(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *Store) SetValue(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv = make(map[string]string)
	return nil
}

// Writes returns how many Set calls have succeeded.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Deletes returns how many Delete calls removed an entry.
func (s *Store) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}
