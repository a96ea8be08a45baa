// Package feed is the single service object UI code talks to.
//
// A Client is built once at startup with its collaborators injected and owns
// the post store, both page caches, the paginator, the mutation engine and
// the viewer's access snapshots.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/feedsync/internal/access"
	"github.com/roach88/feedsync/internal/auth"
	"github.com/roach88/feedsync/internal/engine"
	"github.com/roach88/feedsync/internal/model"
	"github.com/roach88/feedsync/internal/pagecache"
	"github.com/roach88/feedsync/internal/paginator"
	"github.com/roach88/feedsync/internal/poststore"
	"github.com/roach88/feedsync/internal/revalidate"
	"github.com/roach88/feedsync/internal/scroll"
)

// ErrUnknownPost is returned when a post ID is neither in the feed nor in
// the lookup cache.
var ErrUnknownPost = errors.New("unknown post")

// Backend is everything the client needs from the feed API.
type Backend interface {
	paginator.Fetcher
	engine.Backend
	access.Source
	GetPost(ctx context.Context, token, id string) (model.Post, error)
	ListComments(ctx context.Context, token, postID string) ([]model.Comment, error)
}

// Deps are the collaborators supplied at startup.
type Deps struct {
	Backend Backend
	Tokens  auth.Provider
	Pages   *pagecache.Cache
	Viewer  model.Viewer
}

type settings struct {
	pageSize           int
	revalidateInterval time.Duration
	snapshotInterval   time.Duration
	now                func() time.Time
	logger             *slog.Logger
	notifier           engine.Notifier
	ids                engine.IDGenerator
	trace              func(engine.Event)
	keepPagesOnClose   bool
}

// Option configures a Client.
type Option func(*settings)

// WithPageSize sets the number of posts per page.
func WithPageSize(n int) Option {
	return func(s *settings) { s.pageSize = n }
}

// WithRevalidateInterval sets the minimum re-fetch interval per page key.
func WithRevalidateInterval(d time.Duration) Option {
	return func(s *settings) { s.revalidateInterval = d }
}

// WithSnapshotInterval sets how long viewer snapshots are reused.
func WithSnapshotInterval(d time.Duration) Option {
	return func(s *settings) { s.snapshotInterval = d }
}

// WithClock injects the wall clock for every cache.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithLogger injects a logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithNotifier sets where mutation failure notices go.
func WithNotifier(n engine.Notifier) Option {
	return func(s *settings) { s.notifier = n }
}

// WithIDGenerator replaces the mutation ID generator.
func WithIDGenerator(gen engine.IDGenerator) Option {
	return func(s *settings) { s.ids = gen }
}

// WithTrace registers a hook for mutation events.
func WithTrace(fn func(engine.Event)) Option {
	return func(s *settings) { s.trace = fn }
}

// WithKeepPagesOnClose leaves the persisted first page in place on Close so
// the next process starts warm.
func WithKeepPagesOnClose(keep bool) Option {
	return func(s *settings) { s.keepPagesOnClose = keep }
}

// Client is safe for concurrent use.
type Client struct {
	backend   Backend
	tokens    auth.Provider
	pages     *pagecache.Cache
	cache     *revalidate.Cache
	posts     *poststore.Store
	pager     *paginator.Paginator
	engine    *engine.Engine
	snapshots *access.Snapshots
	logger    *slog.Logger
	keepPages bool

	mu       sync.Mutex
	viewer   model.Viewer
	triggers []*scroll.Trigger
}

// New wires a client. Nothing is fetched until Start.
func New(deps Deps, opts ...Option) *Client {
	s := settings{
		pageSize: paginator.DefaultPageSize,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if deps.Tokens == nil {
		deps.Tokens = auth.Anonymous
	}
	if deps.Pages == nil {
		deps.Pages = pagecache.New(pagecache.NewMemoryBackend(), pagecache.WithClock(s.now), pagecache.WithLogger(s.logger))
	}

	c := &Client{
		backend:   deps.Backend,
		tokens:    deps.Tokens,
		pages:     deps.Pages,
		posts:     poststore.New(),
		logger:    s.logger,
		viewer:    deps.Viewer,
		keepPages: s.keepPagesOnClose,
	}
	c.cache = revalidate.New(
		revalidate.WithInterval(s.revalidateInterval),
		revalidate.WithClock(s.now),
		revalidate.WithLogger(s.logger),
	)
	c.pager = paginator.New(paginator.Deps{
		Fetcher: deps.Backend,
		Tokens:  deps.Tokens,
		Posts:   c.posts,
		Pages:   c.pages,
		Cache:   c.cache,
	}, paginator.WithPageSize(s.pageSize), paginator.WithLogger(s.logger))

	engineOpts := []engine.Option{engine.WithLogger(s.logger), engine.WithNotifier(s.notifier)}
	if s.ids != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(s.ids))
	}
	if s.trace != nil {
		engineOpts = append(engineOpts, engine.WithTrace(s.trace))
	}
	c.engine = engine.New(engine.Deps{
		Backend: deps.Backend,
		Tokens:  deps.Tokens,
		Posts:   c.posts,
		Pages:   c.pages,
		Cache:   c.cache,
		Pager:   c.pager,
		Viewer:  c.Viewer,
	}, engineOpts...)

	c.snapshots = access.NewSnapshots(deps.Backend, deps.Tokens,
		access.WithRefreshInterval(s.snapshotInterval),
		access.WithClock(s.now),
		access.WithLogger(s.logger),
	)
	return c
}

// Store exposes the post store for subscriptions.
func (c *Client) Store() *poststore.Store {
	return c.posts
}

// Posts returns the feed in display order.
func (c *Client) Posts() []model.Post {
	return c.posts.Posts()
}

// Status returns the feed's UI status.
func (c *Client) Status() poststore.Status {
	return c.posts.Status()
}

// HasMore reports whether another page may exist.
func (c *Client) HasMore() bool {
	return c.pager.HasMore()
}

// PageCount returns how many pages are loaded.
func (c *Client) PageCount() int {
	return c.pager.PageCount()
}

// Start loads the first page and the viewer snapshots. A snapshot failure is
// logged and does not fail Start.
func (c *Client) Start(ctx context.Context) error {
	if err := c.RefreshViewer(ctx, false); err != nil {
		c.logger.Warn("viewer snapshots unavailable", "error", err)
	}
	if c.pager.PageCount() > 0 {
		return nil
	}
	_, err := c.pager.FetchNextPage(ctx)
	return err
}

// FetchNextPage loads the next page if one may exist and none is loading.
func (c *Client) FetchNextPage(ctx context.Context) (bool, error) {
	return c.pager.FetchNextPage(ctx)
}

// Refresh reloads the feed from the first page, bypassing both caches.
func (c *Client) Refresh(ctx context.Context) error {
	return c.pager.Resync(ctx)
}

// Prefetch warms the cache for the next page.
func (c *Client) Prefetch(ctx context.Context) error {
	return c.pager.Prefetch(ctx)
}

func (c *Client) lookup(id string) (model.Post, error) {
	post, ok := c.posts.Cached(id)
	if !ok {
		return model.Post{}, fmt.Errorf("%w: %s", ErrUnknownPost, id)
	}
	return post, nil
}

// ToggleLike flips the viewer's like on a post using its current state.
func (c *Client) ToggleLike(ctx context.Context, id string) error {
	post, err := c.lookup(id)
	if err != nil {
		return err
	}
	return c.engine.ToggleLike(ctx, id, post.Likes, post.Liked)
}

// DeletePost deletes one of the viewer's posts.
func (c *Client) DeletePost(ctx context.Context, id string) error {
	post, err := c.lookup(id)
	if err != nil {
		return err
	}
	return c.engine.Delete(ctx, post)
}

// CreatePost publishes a post and shows it first.
func (c *Client) CreatePost(ctx context.Context, draft model.PostDraft) (model.Post, error) {
	return c.engine.Create(ctx, draft)
}

// OpenPost shows a post in the single-post view, fetching it only when it is
// not already known.
func (c *Client) OpenPost(ctx context.Context, id string) (model.Post, error) {
	if post, ok := c.posts.Cached(id); ok {
		c.posts.SetFocused(post)
		return post, nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return model.Post{}, fmt.Errorf("get token: %w", err)
	}
	post, err := c.backend.GetPost(ctx, token, id)
	if err != nil {
		return model.Post{}, fmt.Errorf("open post %s: %w", id, err)
	}
	c.posts.SetFocused(post)
	return post, nil
}

// Focused returns the post in the single-post view.
func (c *Client) Focused() (model.Post, bool) {
	return c.posts.Focused()
}

// ClosePost leaves the single-post view.
func (c *Client) ClosePost() {
	c.posts.ClearFocused()
}

// Comments lists the comments on a post.
func (c *Client) Comments(ctx context.Context, id string) ([]model.Comment, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	comments, err := c.backend.ListComments(ctx, token, id)
	if err != nil {
		return nil, fmt.Errorf("list comments %s: %w", id, err)
	}
	return comments, nil
}

// AddComment comments on a post and bumps its comment counter.
func (c *Client) AddComment(ctx context.Context, id, text string) (model.Comment, error) {
	post, err := c.lookup(id)
	if err != nil {
		return model.Comment{}, err
	}
	return c.engine.AddComment(ctx, id, text, post.Comments)
}

// CanView reports whether the current viewer may see post's content.
func (c *Client) CanView(post model.Post) bool {
	perms, subs := c.snapshots.Current()
	return access.CanView(post, c.Viewer(), perms, subs)
}

// AccessReason names the rule behind CanView(post).
func (c *Client) AccessReason(post model.Post) string {
	perms, subs := c.snapshots.Current()
	return access.Reason(post, c.Viewer(), perms, subs)
}

// RefreshViewer refetches the viewer's permissions and subscriptions.
func (c *Client) RefreshViewer(ctx context.Context, force bool) error {
	return c.snapshots.Refresh(ctx, force)
}

// Viewer returns the signed-in viewer.
func (c *Client) Viewer() model.Viewer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewer
}

// SetViewer switches the signed-in viewer. Snapshots are refetched on the
// next RefreshViewer.
func (c *Client) SetViewer(v model.Viewer) {
	c.mu.Lock()
	c.viewer = v
	c.mu.Unlock()
	c.snapshots.Clear()
}

// SignOut forgets the viewer, their snapshots and every cached page.
func (c *Client) SignOut(ctx context.Context) {
	c.mu.Lock()
	c.viewer = model.Viewer{}
	c.mu.Unlock()

	c.snapshots.Clear()
	c.pager.Reset(ctx)
	c.posts.Clear()
	c.logger.Info("signed out, feed caches cleared")
}

// NewTrigger creates an infinite-scroll trigger driving this client's
// paginator. It is closed with the client.
func (c *Client) NewTrigger(factory scroll.ObserverFactory, opts ...scroll.Option) *scroll.Trigger {
	opts = append([]scroll.Option{scroll.WithLogger(c.logger)}, opts...)
	t := scroll.New(c.pager, factory, opts...)
	c.mu.Lock()
	c.triggers = append(c.triggers, t)
	c.mu.Unlock()
	return t
}

// Close stops every trigger and clears the persisted first page unless the
// client was built WithKeepPagesOnClose.
func (c *Client) Close(ctx context.Context) {
	c.mu.Lock()
	triggers := c.triggers
	c.triggers = nil
	c.mu.Unlock()

	for _, t := range triggers {
		t.Close()
	}
	if !c.keepPages {
		c.pages.Clear(ctx)
	}
}
