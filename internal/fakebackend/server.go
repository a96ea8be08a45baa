// Package fakebackend is an in-process implementation of the social feed
// REST API. Tests, scenarios and local development run the client against
// it instead of the real service.
//
// State lives in memory. Failures can be queued per route to exercise the
// client's rollback and resync paths.
package fakebackend

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/roach88/feedsync/internal/auth"
	"github.com/roach88/feedsync/internal/model"
)

// Route names accepted by FailNext and Calls.
const (
	RouteListPosts     = "list_posts"
	RouteGetPost       = "get_post"
	RouteCreatePost    = "create_post"
	RouteDeletePost    = "delete_post"
	RouteToggleLike    = "toggle_like"
	RouteListComments  = "list_comments"
	RouteCreateComment = "create_comment"
	RoutePermissions   = "permissions"
	RouteSubscriptions = "subscriptions"
)

// DefaultSecret signs tokens when no secret is configured.
const DefaultSecret = "feedsync-dev-secret"

// Option configures a Server.
type Option func(*Server)

// WithSecret sets the HS256 secret for bearer tokens.
func WithSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.secret = []byte(secret)
		}
	}
}

// WithClock injects the clock used for token checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDs replaces the generator for new post and comment IDs.
func WithIDs(gen func() string) Option {
	return func(s *Server) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Server is safe for concurrent use.
type Server struct {
	app    *fiber.App
	secret []byte
	now    func() time.Time
	newID  func() string
	logger *slog.Logger

	mu       sync.Mutex
	posts    map[string]model.Post
	likes    map[string]map[string]bool // post ID -> viewer handle -> liked
	comments map[string][]model.Comment
	perms    map[string]model.Permissions
	subs     map[string]model.Subscriptions
	failures map[string][]int
	calls    map[string]int
}

// New creates an empty backend.
func New(opts ...Option) *Server {
	s := &Server{
		secret:   []byte(DefaultSecret),
		now:      time.Now,
		newID:    uuidV7,
		logger:   slog.Default(),
		posts:    make(map[string]model.Post),
		likes:    make(map[string]map[string]bool),
		comments: make(map[string][]model.Comment),
		perms:    make(map[string]model.Permissions),
		subs:     make(map[string]model.Subscriptions),
		failures: make(map[string][]int),
		calls:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          jsonErrorHandler,
	})
	RegisterRoutes(s.app, s)
	return s
}

func jsonErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// App returns the fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Handler adapts the app to net/http, for httptest servers.
func (s *Server) Handler() http.HandlerFunc {
	return adaptor.FiberApp(s.app)
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("fake backend listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops a server started with Listen.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Token issues a non-expiring bearer token for handle.
func (s *Server) Token(handle string) string {
	token, err := auth.Issue(s.secret, handle, s.now(), 0)
	if err != nil {
		// HS256 signing with a byte key cannot fail.
		panic(err)
	}
	return token
}

// Seed stores posts, replacing any with the same ID.
func (s *Server) Seed(posts ...model.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range posts {
		if p.CreatorID == "" {
			p.CreatorID = model.CreatorID(p.Author.Handle)
		}
		s.posts[p.ID] = p
	}
}

// SetPermissions sets the permission snapshot served to handle.
func (s *Server) SetPermissions(handle string, perms model.Permissions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perms[model.NormalizeHandle(handle)] = perms
}

// SetSubscriptions sets the subscription snapshot served to handle.
func (s *Server) SetSubscriptions(handle string, subs model.Subscriptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[model.NormalizeHandle(handle)] = subs
}

// FailNext makes the next request to route fail with status. Calls queue up.
func (s *Server) FailNext(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], status)
}

// Calls returns how many requests route has received.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Post returns the stored post.
func (s *Server) Post(id string) (model.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	return p, ok
}

// Len returns the number of stored posts.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

// orderedIDsLocked returns post IDs newest first.
func (s *Server) orderedIDsLocked() []string {
	ids := make([]string, 0, len(s.posts))
	for id := range s.posts {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids
}

// viewLocked returns post as seen by handle.
func (s *Server) viewLocked(p model.Post, handle string) model.Post {
	p.Liked = handle != "" && s.likes[p.ID][handle]
	if handle != "" && model.SameHandle(handle, p.Author.Handle) {
		p.HasAccess = true
	}
	return p
}
