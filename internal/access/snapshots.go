package access

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/feedsync/internal/auth"
	"github.com/roach88/feedsync/internal/model"
)

// DefaultRefreshInterval is how long fetched snapshots are reused.
const DefaultRefreshInterval = 5 * time.Minute

// Source fetches the viewer's permission and subscription snapshots.
type Source interface {
	Permissions(ctx context.Context, token string) (model.Permissions, error)
	Subscriptions(ctx context.Context, token string) (model.Subscriptions, error)
}

// Option configures Snapshots.
type Option func(*Snapshots)

// WithRefreshInterval overrides DefaultRefreshInterval.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Snapshots) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock injects the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Snapshots) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Snapshots) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Snapshots holds the eventually consistent permission and subscription
// state of the signed-in viewer.
type Snapshots struct {
	source   Source
	tokens   auth.Provider
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	group    singleflight.Group

	mu        sync.Mutex
	perms     model.Permissions
	subs      model.Subscriptions
	fetchedAt time.Time
}

// NewSnapshots creates empty snapshots. Empty snapshots grant nothing beyond
// public posts and the server hint.
func NewSnapshots(source Source, tokens auth.Provider, opts ...Option) *Snapshots {
	if tokens == nil {
		tokens = auth.Anonymous
	}
	s := &Snapshots{
		source:   source,
		tokens:   tokens,
		interval: DefaultRefreshInterval,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh refetches both snapshots when they are older than the refresh
// interval, or always when force is set. On failure the previous snapshots
// are kept and the error is returned. A signed-out viewer gets empty
// snapshots without a request.
func (s *Snapshots) Refresh(ctx context.Context, force bool) error {
	s.mu.Lock()
	fresh := !s.fetchedAt.IsZero() && s.now().Sub(s.fetchedAt) < s.interval
	s.mu.Unlock()
	if fresh && !force {
		return nil
	}

	_, err, _ := s.group.Do("refresh", func() (any, error) {
		return nil, s.refresh(ctx)
	})
	return err
}

func (s *Snapshots) refresh(ctx context.Context) error {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	if token == "" {
		s.Clear()
		return nil
	}

	perms, err := s.source.Permissions(ctx, token)
	if err != nil {
		s.logger.Warn("keeping previous permissions", "error", err)
		return fmt.Errorf("refresh permissions: %w", err)
	}
	subs, err := s.source.Subscriptions(ctx, token)
	if err != nil {
		s.logger.Warn("keeping previous subscriptions", "error", err)
		return fmt.Errorf("refresh subscriptions: %w", err)
	}

	s.mu.Lock()
	s.perms = perms
	s.subs = subs
	s.fetchedAt = s.now()
	s.mu.Unlock()

	s.logger.Debug("viewer snapshots refreshed", "premium", perms.IsPremium, "creator_subscriptions", len(subs.Creators))
	return nil
}

// Current returns copies of the snapshots.
func (s *Snapshots) Current() (model.Permissions, model.Subscriptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs
	if s.subs.Platform != nil {
		p := *s.subs.Platform
		subs.Platform = &p
	}
	subs.Creators = append([]model.CreatorSubscription(nil), s.subs.Creators...)
	return s.perms, subs
}

// FetchedAt returns when the snapshots were last fetched.
func (s *Snapshots) FetchedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchedAt
}

// Clear resets both snapshots, as on sign-out.
func (s *Snapshots) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perms = model.Permissions{}
	s.subs = model.Subscriptions{}
	s.fetchedAt = time.Time{}
}
