package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"presupuesto/internal/session"
)

// RedisStore keeps session entries as hashes with native key expiry, so a
// credential shared between hosts expires without a sweeper.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// Ensure interface conformance
var (
	_ session.Store = (*RedisStore)(nil)
	_ session.KV    = (*RedisStore)(nil)
)

func NewRedisStore(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisStoreFromClient(client, prefix), nil
}

func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) entryKey(name, path string) string {
	return s.prefix + "entry:" + name + "|" + path
}

func (s *RedisStore) kvKey() string {
	return s.prefix + "kv"
}

// Get returns the named entry, preferring the root path scope.
func (s *RedisStore) Get(ctx context.Context, name string) (session.Entry, bool, error) {
	for _, p := range session.PathScopes {
		e, ok, err := s.load(ctx, s.entryKey(name, p))
		if err != nil || ok {
			return e, ok, err
		}
	}

	keys, err := s.scan(ctx, s.entryKey(name, "*"))
	if err != nil {
		return session.Entry{}, false, err
	}
	for _, k := range keys {
		e, ok, err := s.load(ctx, k)
		if err != nil || ok {
			return e, ok, err
		}
	}
	return session.Entry{}, false, nil
}

func (s *RedisStore) load(ctx context.Context, key string) (session.Entry, bool, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return session.Entry{}, false, fmt.Errorf("load %s: %w", key, err)
	}
	if len(fields) == 0 {
		return session.Entry{}, false, nil
	}
	e := session.Entry{
		Name:  fields["name"],
		Path:  fields["path"],
		Value: fields["value"],
	}
	if n, err := strconv.ParseInt(fields["expires_at"], 10, 64); err == nil && n > 0 {
		e.ExpiresAt = time.Unix(0, n).UTC()
	}
	return e, true, nil
}

func (s *RedisStore) Set(ctx context.Context, e session.Entry) error {
	if e.Name == "" {
		return session.ErrEmptyName
	}
	key := s.entryKey(e.Name, e.Path)
	if !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(time.Now()) {
		return s.Delete(ctx, e.Name, e.Path)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]any{
			"name":       e.Name,
			"path":       e.Path,
			"value":      e.Value,
			"expires_at": strconv.FormatInt(toUnix(e.ExpiresAt), 10),
		})
		if !e.ExpiresAt.IsZero() {
			pipe.PExpireAt(ctx, key, e.ExpiresAt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set entry %s: %w", e.Name, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, name, path string) error {
	if err := s.client.Del(ctx, s.entryKey(name, path)).Err(); err != nil {
		return fmt.Errorf("delete entry %s: %w", name, err)
	}
	return nil
}

func (s *RedisStore) Entries(ctx context.Context) ([]session.Entry, error) {
	keys, err := s.scan(ctx, s.prefix+"entry:*")
	if err != nil {
		return nil, err
	}
	out := make([]session.Entry, 0, len(keys))
	for _, k := range keys {
		e, ok, err := s.load(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

func (s *RedisStore) scan(ctx context.Context, match string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", match, err)
	}
	return keys, nil
}

func (s *RedisStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.kvKey(), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get value %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) SetValue(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, s.kvKey(), key, value).Err(); err != nil {
		return fmt.Errorf("set value %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.kvKey()).Err(); err != nil {
		return fmt.Errorf("clear kv: %w", err)
	}
	return nil
}
