package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/feedsync/internal/api"
	"github.com/roach88/feedsync/internal/auth"
	"github.com/roach88/feedsync/internal/engine"
	"github.com/roach88/feedsync/internal/fakebackend"
	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/model"
	"github.com/roach88/feedsync/internal/pagecache"
	"github.com/roach88/feedsync/internal/scroll"
	"github.com/roach88/feedsync/internal/testutil"
)

// Harness runs one scenario against a fresh backend and client.
type Harness struct {
	scenario *Scenario
	clock    *testutil.ManualClock
	backend  *fakebackend.Server
	pages    *pagecache.Cache
	client   *feed.Client
	logger   *slog.Logger

	viewport *scroll.Viewport
	trigger  *scroll.Trigger
	scrolled chan error

	mu     sync.Mutex
	token  string
	seq    int
	result *Result
}

// Option configures a run.
type Option func(*Harness)

// WithLogger routes client and backend logs to logger. Runs are silent by
// default.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Run executes a scenario and returns its trace. Step and assertion
// failures are reported in the result; the error is for setup problems.
//
// Each run gets its own backend, HTTP listener and caches.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		clock:    testutil.NewManualClock(time.Time{}),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		result:   NewResult(),
	}
	for _, opt := range opts {
		opt(h)
	}

	var serverIDs atomic.Int64
	h.backend = fakebackend.New(
		fakebackend.WithClock(h.clock.Now),
		fakebackend.WithLogger(h.logger),
		fakebackend.WithIDs(func() string {
			return "srv-" + strconv.FormatInt(serverIDs.Add(1), 10)
		}),
	)
	h.seed()

	srv := httptest.NewServer(h.backend.Handler())
	defer srv.Close()

	if scenario.Viewer != "" {
		h.token = h.backend.Token(scenario.Viewer)
	}

	h.pages = pagecache.New(pagecache.NewMemoryBackend(),
		pagecache.WithClock(h.clock.Now),
		pagecache.WithLogger(h.logger),
	)
	clientOpts := []feed.Option{
		feed.WithClock(h.clock.Now),
		feed.WithLogger(h.logger),
		feed.WithIDGenerator(engine.NewFixedGenerator()),
		feed.WithTrace(h.onMutation),
	}
	if scenario.PageSize > 0 {
		clientOpts = append(clientOpts, feed.WithPageSize(scenario.PageSize))
	}
	h.client = feed.New(feed.Deps{
		Backend: api.New(srv.URL, api.WithRetryInterval(time.Millisecond), api.WithLogger(h.logger)),
		Tokens:  auth.Func(h.currentToken),
		Pages:   h.pages,
		Viewer:  model.Viewer{Handle: scenario.Viewer},
	}, clientOpts...)
	defer h.client.Close(ctx)

	for i, step := range scenario.Steps {
		err := h.execute(ctx, step)
		code := errorCode(err)
		h.recordStep(step, code)

		switch {
		case step.ExpectError == "" && err != nil:
			h.result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, step.Do, err))
		case step.ExpectError != "" && code != step.ExpectError:
			h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %q", i, step.Do, step.ExpectError, code))
		}
	}

	actx := &AssertionContext{
		Ctx:     ctx,
		Client:  h.client,
		Backend: h.backend,
		Pages:   h.pages,
	}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) seed() {
	author := h.scenario.Author
	if author == "" {
		author = "@author"
	}
	premium := make(map[string]bool, len(h.scenario.Premium))
	for _, id := range h.scenario.Premium {
		premium[id] = true
	}

	posts := testutil.Posts("p", h.scenario.Posts)
	for i := range posts {
		posts[i].Author = model.Author{Name: model.CreatorID(author), Handle: author}
		if premium[posts[i].ID] {
			posts[i].IsPremiumPost = true
			posts[i].HasAccess = false
		}
	}
	h.backend.Seed(posts...)
}

func (h *Harness) currentToken(context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.token, nil
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	c := h.client
	switch step.Do {
	case StepStart:
		return c.Start(ctx)
	case StepFetchNext:
		_, err := c.FetchNextPage(ctx)
		return err
	case StepRefresh:
		return c.Refresh(ctx)
	case StepScroll:
		return h.scroll()
	case StepLike:
		return c.ToggleLike(ctx, step.Post)
	case StepDelete:
		return c.DeletePost(ctx, step.Post)
	case StepCreate:
		_, err := c.CreatePost(ctx, model.PostDraft{Content: step.Content})
		return err
	case StepComment:
		_, err := c.AddComment(ctx, step.Post, step.Content)
		return err
	case StepOpen:
		_, err := c.OpenPost(ctx, step.Post)
		return err
	case StepSignOut:
		h.mu.Lock()
		h.token = ""
		h.mu.Unlock()
		c.SignOut(ctx)
		return nil
	case StepFailNext:
		status := step.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		h.backend.FailNext(step.Route, status)
		return nil
	case StepAdvance:
		d, err := time.ParseDuration(step.By)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		return nil
	case StepGrantPremium:
		h.backend.SetPermissions(h.scenario.Viewer, model.Permissions{IsPremium: true})
		return nil
	case StepRefreshViewer:
		return c.RefreshViewer(ctx, true)
	default:
		return fmt.Errorf("unknown step %q", step.Do)
	}
}

// scroll reveals the last loaded post to the infinite-scroll trigger and
// waits for the load it starts.
func (h *Harness) scroll() error {
	if h.trigger == nil {
		h.viewport = scroll.NewViewport()
		h.scrolled = make(chan error, 1)
		h.trigger = h.client.NewTrigger(h.viewport.Factory(), scroll.WithOnSettle(func(_ bool, err error) {
			h.scrolled <- err
		}))
	}

	posts := h.client.Posts()
	if len(posts) == 0 {
		return nil
	}
	last := posts[len(posts)-1].ID
	h.trigger.Bind(last)
	h.viewport.Reveal(last)
	h.trigger.Wait()

	select {
	case err := <-h.scrolled:
		return err
	default:
		return nil
	}
}

func (h *Harness) onMutation(ev engine.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Seq:        h.seq,
		Type:       EventMutation,
		Action:     ev.Mutation,
		PostID:     ev.PostID,
		MutationID: ev.MutationID,
		Phase:      string(ev.Phase),
	})
}

func (h *Harness) recordStep(step Step, code string) {
	posts := len(h.client.Posts())
	hasMore := h.client.HasMore()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Seq:     h.seq,
		Type:    EventStep,
		Action:  step.Do,
		PostID:  step.Post,
		Error:   code,
		Posts:   &posts,
		HasMore: &hasMore,
	})
}

// errorCode reduces err to a stable code for traces.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var merr *engine.MutationError
	if errors.As(err, &merr) {
		return string(merr.Code)
	}
	var aerr *api.APIError
	if errors.As(err, &aerr) {
		return "HTTP_" + strconv.Itoa(aerr.Status)
	}
	if errors.Is(err, feed.ErrUnknownPost) {
		return "UNKNOWN_POST"
	}
	return "ERROR"
}
