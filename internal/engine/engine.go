package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/feedsync/internal/auth"
	"github.com/roach88/feedsync/internal/model"
	"github.com/roach88/feedsync/internal/pagecache"
	"github.com/roach88/feedsync/internal/poststore"
	"github.com/roach88/feedsync/internal/revalidate"
)

// Backend is the subset of the API client the engine mutates through.
type Backend interface {
	ToggleLike(ctx context.Context, token, id string) (bool, error)
	DeletePost(ctx context.Context, token, id string) error
	CreatePost(ctx context.Context, token string, draft model.PostDraft) (model.Post, error)
	CreateComment(ctx context.Context, token, postID, content string) (model.Comment, error)
}

// Pager is the paginator as seen by mutations.
//
// Hide keeps a post out of every page that lands later, stale or not.
// Invalidate makes a page load still in flight run again instead of landing.
// Resync reloads the feed from the first page.
type Pager interface {
	Hide(id string)
	Unhide(id string)
	Invalidate()
	Resync(ctx context.Context) error
}

// ViewerFunc returns the signed-in viewer.
type ViewerFunc func() model.Viewer

// Deps are the collaborators an Engine mutates.
type Deps struct {
	Backend Backend
	Tokens  auth.Provider
	Posts   *poststore.Store
	Pages   *pagecache.Cache
	Cache   *revalidate.Cache
	Pager   Pager
	Viewer  ViewerFunc
}

// Phase names a step in a mutation's life.
type Phase string

const (
	PhaseRejected   Phase = "rejected"    // refused before any local change
	PhaseApplied    Phase = "applied"     // local change made, request in flight
	PhaseCommitted  Phase = "committed"   // backend accepted
	PhaseRolledBack Phase = "rolled_back" // backend refused, local change undone
	PhaseFailed     Phase = "failed"      // backend refused, nothing to undo
)

// Event is one step of a mutation, reported to the trace hook.
type Event struct {
	Seq        int64
	MutationID string
	Mutation   string
	PostID     string
	Phase      Phase
	Err        error
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator replaces the UUIDv7 mutation ID generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(e *Engine) {
		if gen != nil {
			e.ids = gen
		}
	}
}

// WithNotifier sets where failure notices go.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithTrace registers a hook that receives every mutation event in order.
func WithTrace(fn func(Event)) Option {
	return func(e *Engine) {
		e.trace = fn
	}
}

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine is safe for concurrent use; it holds no per-mutation state.
type Engine struct {
	deps     Deps
	ids      IDGenerator
	clock    *Clock
	notifier Notifier
	trace    func(Event)
	logger   *slog.Logger
}

// New creates an engine over deps.
func New(deps Deps, opts ...Option) *Engine {
	if deps.Tokens == nil {
		deps.Tokens = auth.Anonymous
	}
	if deps.Viewer == nil {
		deps.Viewer = func() model.Viewer { return model.Viewer{} }
	}
	e := &Engine{
		deps:     deps,
		ids:      UUIDv7Generator{},
		clock:    NewClock(),
		notifier: NopNotifier{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mutation describes one optimistic change.
type Mutation struct {
	Name   string
	PostID string

	// Do applies the local change. Optional.
	Do func()
	// Undo restores the state Do replaced. Nil means there is nothing to restore.
	Undo func()
	// Request performs the backend call with the resolved token.
	Request func(ctx context.Context, token string) error
	// OnSuccess runs after the backend accepted the request. Optional.
	OnSuccess func(ctx context.Context)
	// OnFailure runs after Undo when the request failed. Optional.
	OnFailure func(ctx context.Context, err error)
	// FailureMessage is shown to the viewer when the request fails.
	FailureMessage string
}

// Apply runs m. See the package documentation for the sequence.
func (e *Engine) Apply(ctx context.Context, m Mutation) error {
	id := e.ids.Generate()
	logger := e.logger.With("mutation", m.Name, "mutation_id", id)
	if m.PostID != "" {
		logger = logger.With("post_id", m.PostID)
	}

	token, err := e.deps.Tokens.Token(ctx)
	if err != nil || token == "" {
		cause := ErrSignInRequired
		if err != nil {
			cause = fmt.Errorf("%w: %v", ErrSignInRequired, err)
		}
		return e.reject(ctx, logger, id, m, ErrCodeAuthMissing, cause)
	}

	if m.Do != nil {
		m.Do()
	}
	e.emit(Event{MutationID: id, Mutation: m.Name, PostID: m.PostID, Phase: PhaseApplied})

	if err := m.Request(ctx, token); err != nil {
		phase := PhaseFailed
		if m.Undo != nil {
			m.Undo()
			phase = PhaseRolledBack
		}
		e.emit(Event{MutationID: id, Mutation: m.Name, PostID: m.PostID, Phase: phase, Err: err})
		logger.Warn("mutation failed", "phase", phase, "error", err)

		if m.OnFailure != nil {
			m.OnFailure(ctx, err)
		}
		msg := m.FailureMessage
		if msg == "" {
			msg = "something went wrong"
		}
		e.notifier.Notify(ctx, Notice{MutationID: id, Mutation: m.Name, PostID: m.PostID, Message: msg, Err: err})
		return &MutationError{Code: ErrCodeRequestFailed, Mutation: m.Name, MutationID: id, PostID: m.PostID, Err: err}
	}

	e.emit(Event{MutationID: id, Mutation: m.Name, PostID: m.PostID, Phase: PhaseCommitted})
	if m.OnSuccess != nil {
		m.OnSuccess(ctx)
	}
	logger.Debug("mutation committed")
	return nil
}

func (e *Engine) reject(ctx context.Context, logger *slog.Logger, id string, m Mutation, code MutationErrorCode, cause error) error {
	e.emit(Event{MutationID: id, Mutation: m.Name, PostID: m.PostID, Phase: PhaseRejected, Err: cause})
	logger.Info("mutation rejected", "code", code, "reason", cause)
	e.notifier.Notify(ctx, Notice{MutationID: id, Mutation: m.Name, PostID: m.PostID, Message: userMessage(code), Err: cause})
	return &MutationError{Code: code, Mutation: m.Name, MutationID: id, PostID: m.PostID, Err: cause}
}

func userMessage(code MutationErrorCode) string {
	switch code {
	case ErrCodeAuthMissing:
		return "please sign in"
	case ErrCodeNotAuthor:
		return "you can only delete your own posts"
	default:
		return "something went wrong"
	}
}

func (e *Engine) emit(ev Event) {
	ev.Seq = e.clock.Next()
	if e.trace != nil {
		e.trace(ev)
	}
}
