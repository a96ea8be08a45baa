package pagecache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/roach88/feedsync/internal/model"
)

const (
	// Key is the single fixed storage key for the persisted first page.
	Key = "posts-cache"

	// DefaultTTL is how long a persisted page stays readable after it was written.
	DefaultTTL = 2 * time.Minute
)

// Backend is durable byte storage addressed by key.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// entry is the stored envelope: {"data": Page, "timestamp": epoch-ms}.
type entry struct {
	Data      model.Page `json:"data"`
	Timestamp int64      `json:"timestamp"`
}

// Option mutates cache configuration.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the wall clock used for timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Cache is the persisted first-page cache.
type Cache struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a cache over backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Read returns the persisted page if present and not older than the TTL.
// Expired or corrupt entries are evicted.
func (c *Cache) Read(ctx context.Context) (model.Page, bool) {
	e, ok := c.load(ctx)
	if !ok {
		return model.Page{}, false
	}

	age := c.now().Sub(time.UnixMilli(e.Timestamp))
	if age > c.ttl {
		c.logger.Debug("persisted page expired", "age", age, "ttl", c.ttl)
		c.Clear(ctx)
		return model.Page{}, false
	}

	return e.Data, true
}

// Write overwrites the slot with page stamped at the current time.
// Failures are logged, never returned.
func (c *Cache) Write(ctx context.Context, page model.Page) {
	c.store(ctx, entry{Data: page, Timestamp: c.now().UnixMilli()})
}

// Clear evicts the slot.
func (c *Cache) Clear(ctx context.Context) {
	if err := c.backend.Delete(ctx, Key); err != nil {
		c.logger.Warn("persisted page clear failed", "error", err)
	}
}

// RemovePost strips one post from the persisted page, keeping the original
// write time so the removal never extends the entry's life.
func (c *Cache) RemovePost(ctx context.Context, id string) {
	e, ok := c.load(ctx)
	if !ok {
		return
	}

	kept := make([]model.Post, 0, len(e.Data.Posts))
	for _, p := range e.Data.Posts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(e.Data.Posts) {
		return
	}
	e.Data.Posts = kept
	c.store(ctx, e)
}

// Inspect returns the raw entry and its age without applying the TTL.
// Used by tooling; feed code should call Read.
func (c *Cache) Inspect(ctx context.Context) (model.Page, time.Duration, bool) {
	e, ok := c.load(ctx)
	if !ok {
		return model.Page{}, 0, false
	}
	return e.Data, c.now().Sub(time.UnixMilli(e.Timestamp)), true
}

func (c *Cache) load(ctx context.Context) (entry, bool) {
	raw, found, err := c.backend.Get(ctx, Key)
	if err != nil {
		c.logger.Warn("persisted page read failed", "error", err)
		return entry{}, false
	}
	if !found {
		return entry{}, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Warn("persisted page corrupt, evicting", "error", err)
		c.Clear(ctx)
		return entry{}, false
	}
	return e, true
}

func (c *Cache) store(ctx context.Context, e entry) {
	raw, err := json.Marshal(e)
	if err != nil {
		c.logger.Warn("persisted page encode failed", "error", err)
		return
	}
	if err := c.backend.Set(ctx, Key, raw); err != nil {
		c.logger.Warn("persisted page write failed", "error", err)
	}
}
