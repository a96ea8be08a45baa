// Package paginator walks the feed page by page and feeds the post store.
//
// The first page is served from the persisted page cache when it is fresh and
// written back after every network fetch. Every other page goes through the
// revalidation cache. Only one page fetch is in flight at a time.
package paginator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/feedsync/internal/auth"
	"github.com/roach88/feedsync/internal/model"
	"github.com/roach88/feedsync/internal/pagecache"
	"github.com/roach88/feedsync/internal/poststore"
	"github.com/roach88/feedsync/internal/revalidate"
)

// DefaultPageSize is the number of posts requested per page.
const DefaultPageSize = 10

// maxStaleLoads bounds how often one FetchNextPage call loads a page that is
// invalidated before it can land.
const maxStaleLoads = 3

// ErrPageInvalidated is returned when every load of a page was invalidated
// before it could land.
var ErrPageInvalidated = errors.New("page invalidated while loading")

// Fetcher loads one page from the backend.
type Fetcher interface {
	ListPosts(ctx context.Context, token, cursor string, limit int) (model.Page, error)
}

// Deps are the collaborators a Paginator drives.
type Deps struct {
	Fetcher Fetcher
	Tokens  auth.Provider
	Posts   *poststore.Store
	Pages   *pagecache.Cache
	Cache   *revalidate.Cache
}

// Option configures a Paginator.
type Option func(*Paginator)

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(p *Paginator) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Paginator) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Paginator is safe for concurrent use.
type Paginator struct {
	deps     Deps
	pageSize int
	logger   *slog.Logger

	mu        sync.Mutex
	epoch     uint64 // bumped by Resync; results from an older epoch are dropped
	loading   bool
	hasMore   bool
	pageCount int    // pages requested so far
	next      string // cursor of the page after the last loaded one
	err       error

	// landMu serializes landing a page against Invalidate and Hide.
	// Lock order: landMu before mu.
	landMu sync.Mutex
	gen    uint64              // bumped by Invalidate; a load from an older gen is redone
	hidden map[string]struct{} // ids filtered out of every page that lands
}

// New creates a paginator positioned before the first page.
func New(deps Deps, opts ...Option) *Paginator {
	if deps.Tokens == nil {
		deps.Tokens = auth.Anonymous
	}
	p := &Paginator{
		deps:     deps,
		pageSize: DefaultPageSize,
		logger:   slog.Default(),
		hasMore:  true,
		hidden:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchNextPage loads the next page into the post store.
//
// It returns false without fetching while another page is loading or once the
// stream has ended. On error the page counter is rolled back so the next call
// retries the same cursor.
func (p *Paginator) FetchNextPage(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.loading || !p.hasMore {
		p.mu.Unlock()
		return false, nil
	}
	p.loading = true
	epoch := p.epoch
	index := p.pageCount
	cursor := p.next
	p.pageCount++
	p.mu.Unlock()

	p.deps.Posts.SetLoading(true)
	page, fromNetwork, err := p.loadCurrent(ctx, index, cursor)
	defer p.landMu.Unlock()

	p.mu.Lock()
	if epoch != p.epoch {
		p.mu.Unlock()
		p.logger.Debug("dropping page from before resync", "page", index, "cursor", cursor)
		return false, nil
	}
	p.loading = false
	if err != nil {
		p.pageCount--
		p.err = err
		p.mu.Unlock()

		p.deps.Pages.Clear(ctx)
		p.deps.Posts.SetError(err)
		p.deps.Posts.SetLoading(false)
		p.logger.Warn("page fetch failed", "page", index, "cursor", cursor, "error", err)
		return false, err
	}
	p.hasMore = page.HasNext() && len(page.Posts) > 0
	p.next = page.NextPageCursor
	p.err = nil
	hasMore := p.hasMore
	p.mu.Unlock()

	page.Posts = p.visible(page.Posts)
	if index == 0 {
		if fromNetwork {
			p.deps.Pages.Write(ctx, page)
		}
		p.deps.Posts.Replace(page.Posts)
	} else {
		p.deps.Posts.MergeInsert(page.Posts)
	}
	p.deps.Posts.SetError(nil)
	p.deps.Posts.SetHasMore(hasMore)
	p.deps.Posts.SetLoading(false)

	p.logger.Debug("page loaded", "page", index, "posts", len(page.Posts), "has_more", hasMore)
	return true, nil
}

// loadCurrent loads a page and returns with landMu held, once a load finished
// without an Invalidate happening while it ran.
func (p *Paginator) loadCurrent(ctx context.Context, index int, cursor string) (model.Page, bool, error) {
	for attempt := 1; ; attempt++ {
		p.landMu.Lock()
		gen := p.gen
		p.landMu.Unlock()

		page, fromNetwork, err := p.load(ctx, index, cursor)

		p.landMu.Lock()
		if gen == p.gen {
			return page, fromNetwork, err
		}
		if attempt == maxStaleLoads {
			return model.Page{}, false, ErrPageInvalidated
		}
		p.landMu.Unlock()
		p.logger.Debug("page invalidated while loading", "page", index, "cursor", cursor, "attempt", attempt)
	}
}

func (p *Paginator) load(ctx context.Context, index int, cursor string) (model.Page, bool, error) {
	if index == 0 {
		if page, ok := p.deps.Pages.Read(ctx); ok {
			p.logger.Debug("first page served from persisted cache", "posts", len(page.Posts))
			return page, false, nil
		}
	}

	page, err := p.deps.Cache.Get(ctx, p.key(cursor), p.fetch(cursor))
	if err != nil {
		return model.Page{}, false, err
	}
	return page, true, nil
}

// visible drops hidden posts into a new slice. Caller holds landMu.
func (p *Paginator) visible(posts []model.Post) []model.Post {
	if len(p.hidden) == 0 {
		return posts
	}
	out := make([]model.Post, 0, len(posts))
	for _, post := range posts {
		if _, ok := p.hidden[post.ID]; !ok {
			out = append(out, post)
		}
	}
	return out
}

// Invalidate drops the revalidation cache and makes a page load still in
// flight run again instead of landing. Loaded pages and the cursor are kept.
func (p *Paginator) Invalidate() {
	p.deps.Cache.Invalidate()
	p.landMu.Lock()
	p.gen++
	p.landMu.Unlock()
}

// Hide filters id out of every page that lands from now on, including one
// already in flight.
func (p *Paginator) Hide(id string) {
	p.landMu.Lock()
	p.hidden[id] = struct{}{}
	p.landMu.Unlock()
}

// Unhide reverses Hide.
func (p *Paginator) Unhide(id string) {
	p.landMu.Lock()
	delete(p.hidden, id)
	p.landMu.Unlock()
}

func (p *Paginator) key(cursor string) revalidate.Key {
	return revalidate.Key{Cursor: cursor, PageSize: p.pageSize}
}

func (p *Paginator) fetch(cursor string) revalidate.FetchFunc {
	return func(ctx context.Context) (model.Page, error) {
		token, err := p.deps.Tokens.Token(ctx)
		if err != nil {
			return model.Page{}, fmt.Errorf("get token: %w", err)
		}
		return p.deps.Fetcher.ListPosts(ctx, token, cursor, p.pageSize)
	}
}

// Reset drops both caches and rewinds to before the first page without
// fetching. A fetch still in flight is discarded when it settles.
func (p *Paginator) Reset(ctx context.Context) {
	p.mu.Lock()
	p.epoch++
	p.loading = false
	p.hasMore = true
	p.pageCount = 0
	p.next = ""
	p.err = nil
	p.mu.Unlock()

	p.deps.Cache.Invalidate()
	p.deps.Pages.Clear(ctx)
	p.deps.Posts.SetHasMore(true)
	p.deps.Posts.SetLoading(false)
}

// Resync resets the paginator and loads the first page from the network.
func (p *Paginator) Resync(ctx context.Context) error {
	p.Reset(ctx)
	_, err := p.FetchNextPage(ctx)
	return err
}

// Prefetch warms the revalidation cache for the next page without merging it.
func (p *Paginator) Prefetch(ctx context.Context) error {
	p.mu.Lock()
	if !p.hasMore || p.pageCount == 0 || p.next == "" {
		p.mu.Unlock()
		return nil
	}
	cursor := p.next
	p.mu.Unlock()

	if _, err := p.deps.Cache.Get(ctx, p.key(cursor), p.fetch(cursor)); err != nil {
		return fmt.Errorf("prefetch %s: %w", cursor, err)
	}
	return nil
}

// HasMore reports whether another page may exist.
func (p *Paginator) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Loading reports whether a page fetch is in flight.
func (p *Paginator) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// PageCount returns how many pages have been loaded.
func (p *Paginator) PageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loading {
		return p.pageCount - 1
	}
	return p.pageCount
}

// Cursor returns the cursor the next fetch will use.
func (p *Paginator) Cursor() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

// Err returns the error from the last fetch, if it failed.
func (p *Paginator) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// PageSize returns the number of posts requested per page.
func (p *Paginator) PageSize() int {
	return p.pageSize
}
