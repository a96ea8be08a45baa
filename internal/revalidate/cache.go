// Package revalidate is the in-memory cache of page fetch results.
//
// Results are addressed by (cursor, page size). Concurrent requests for the
// same key share one in-flight fetch, and a key that resolved less than the
// minimum interval ago is served from memory without fetching again.
package revalidate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/feedsync/internal/model"
)

// DefaultInterval is the minimum time between two fetches of a resolved key.
const DefaultInterval = 30 * time.Second

// Key addresses one page of one feed.
type Key struct {
	Cursor   string
	PageSize int
}

// String renders the key for logging and in-flight grouping.
func (k Key) String() string {
	return fmt.Sprintf("posts|%s|%d", k.Cursor, k.PageSize)
}

// FetchFunc loads the page for a key.
type FetchFunc func(ctx context.Context) (model.Page, error)

// Stats counts cache outcomes.
type Stats struct {
	Hits    int // served from memory
	Fetches int // fetch functions actually executed
	Shared  int // callers that joined another caller's in-flight fetch
}

// Option mutates cache configuration.
type Option func(*Cache)

// WithInterval sets the minimum re-fetch interval.
func WithInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithClock injects the wall clock.
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

type entry struct {
	page      model.Page
	fetchedAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	group    singleflight.Group

	mu         sync.Mutex
	entries    map[Key]entry
	generation uint64
	stats      Stats
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		interval: DefaultInterval,
		now:      time.Now,
		logger:   slog.Default(),
		entries:  make(map[Key]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the page for key, fetching it only when no fresh result exists.
//
// Fetch errors are returned to every caller sharing the fetch and are not
// cached. A result whose fetch started before the last Invalidate is returned
// to its callers but never stored.
func (c *Cache) Get(ctx context.Context, key Key, fetch FetchFunc) (model.Page, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Sub(e.fetchedAt) < c.interval {
		c.stats.Hits++
		c.mu.Unlock()
		return e.page.Clone(), nil
	}
	gen := c.generation
	c.mu.Unlock()

	// The generation is part of the group key so callers arriving after an
	// invalidation never join a fetch that started before it.
	v, err, shared := c.group.Do(fmt.Sprintf("%d/%s", gen, key), func() (any, error) {
		c.mu.Lock()
		c.stats.Fetches++
		c.mu.Unlock()

		page, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.generation == gen {
			c.entries[key] = entry{page: page.Clone(), fetchedAt: c.now()}
		} else {
			c.logger.Debug("dropping result fetched before invalidation", "key", key.String())
		}
		c.mu.Unlock()
		return page, nil
	})
	if shared {
		c.mu.Lock()
		c.stats.Shared++
		c.mu.Unlock()
	}
	if err != nil {
		return model.Page{}, err
	}
	return v.(model.Page).Clone(), nil
}

// Invalidate drops every entry and detaches in-flight fetches from the cache.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]entry)
	c.generation++
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
