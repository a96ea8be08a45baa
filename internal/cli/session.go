package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/api"
	"github.com/roach88/feedsync/internal/auth"
	"github.com/roach88/feedsync/internal/config"
	"github.com/roach88/feedsync/internal/engine"
	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/model"
	"github.com/roach88/feedsync/internal/pagecache"
	"github.com/roach88/feedsync/internal/store"
)

// session is one CLI invocation's feed client and the resources behind it.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	pages  *pagecache.Cache
	slots  *store.Store // nil unless the sqlite backend is configured
	client *feed.Client
	out    *OutputFormatter

	closers []io.Closer
}

// openPages builds the persisted first-page cache for cfg's backend.
func openPages(cfg config.Config, logger *slog.Logger) (*pagecache.Cache, *store.Store, []io.Closer, error) {
	opts := []pagecache.Option{pagecache.WithTTL(cfg.CacheTTL), pagecache.WithLogger(logger)}

	switch cfg.CacheBackend {
	case config.BackendSQLite:
		st, err := store.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, WrapExitError(ExitCommandError, "failed to open cache database", err)
		}
		return pagecache.New(pagecache.NewSQLiteBackend(st), opts...), st, []io.Closer{st}, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return pagecache.New(pagecache.NewRedisBackend(rdb, cfg.RedisPrefix), opts...), nil, []io.Closer{rdb}, nil
	default:
		return pagecache.New(pagecache.NewMemoryBackend(), opts...), nil, nil, nil
	}
}

// tokenProvider returns the bearer token source and the viewer it names.
// A configured viewer handle wins over the token subject.
func tokenProvider(cfg config.Config) (auth.Provider, model.Viewer, error) {
	viewer := model.Viewer{Handle: cfg.ViewerHandle}
	if cfg.Token == "" {
		return auth.Anonymous, viewer, nil
	}
	jwt, err := auth.NewJWT(cfg.Token)
	if err != nil {
		return nil, viewer, WrapExitError(ExitCommandError, "invalid token", err)
	}
	if viewer.Handle == "" {
		viewer.Handle = jwt.Subject()
	}
	return jwt, viewer, nil
}

func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), opts, cfg)

	tokens, viewer, err := tokenProvider(cfg)
	if err != nil {
		return nil, err
	}
	pages, slots, closers, err := openPages(cfg, logger)
	if err != nil {
		return nil, err
	}

	backend := api.New(cfg.BaseURL,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithRetries(cfg.Retries),
		api.WithLogger(logger),
	)
	client := feed.New(feed.Deps{
		Backend: backend,
		Tokens:  tokens,
		Pages:   pages,
		Viewer:  viewer,
	},
		feed.WithPageSize(cfg.PageSize),
		feed.WithRevalidateInterval(cfg.RevalidateInterval),
		feed.WithSnapshotInterval(cfg.SnapshotInterval),
		feed.WithLogger(logger),
		feed.WithNotifier(engine.LogNotifier{Logger: logger}),
		feed.WithKeepPagesOnClose(cfg.KeepCacheOnExit),
	)

	logger.Debug("session opened", "base_url", cfg.BaseURL, "cache", cfg.CacheBackend, "viewer", viewer.Handle)
	return &session{
		cfg:     cfg,
		logger:  logger,
		pages:   pages,
		slots:   slots,
		client:  client,
		out:     newFormatter(cmd, opts),
		closers: closers,
	}, nil
}

func (s *session) Close(ctx context.Context) {
	s.client.Close(ctx)
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Warn("close", "error", err)
		}
	}
}

// start loads the viewer snapshots and the first page.
func (s *session) start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to load feed", err)
	}
	return nil
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// wrapPostErr attaches the action and post ID to a failed request.
func wrapPostErr(action, id string, err error) error {
	return WrapExitError(ExitFailure, fmt.Sprintf("%s %s", action, id), err)
}
