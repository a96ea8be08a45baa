package pagecache

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/feedsync/internal/store"
)

// SQLiteBackend stores the slot in a durable SQLite store.
type SQLiteBackend struct {
	store *store.Store
}

// NewSQLiteBackend wraps an open store.
func NewSQLiteBackend(s *store.Store) *SQLiteBackend {
	return &SQLiteBackend{store: s}
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return b.store.Get(ctx, key)
}

func (b *SQLiteBackend) Set(ctx context.Context, key string, value []byte) error {
	return b.store.Put(ctx, key, value)
}

func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	return b.store.Delete(ctx, key)
}

// RedisBackend stores the slot in Redis so several client processes on one
// host can share a warm first page.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps a Redis client. prefix namespaces the key per viewer
// or environment; it may be empty.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) key(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + ":" + key
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set stores without a Redis-side expiry; the cache enforces its TTL on read.
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	return b.client.Set(ctx, b.key(key), value, 0).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.key(key)).Err()
}

// MemoryBackend keeps the slot in process memory. Nothing survives a restart.
type MemoryBackend struct {
	mu    sync.Mutex
	slots map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{slots: make(map[string][]byte)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.slots[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots[key] = append([]byte(nil), value...)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.slots, key)
	return nil
}
