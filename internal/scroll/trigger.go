// Package scroll loads the next feed page when the last rendered post comes
// into view.
//
// A Trigger observes exactly one target, the last post in the list. When the
// list grows, Bind moves the observation to the new last post. A page fetch
// starts only while the trigger is idle and the pager reports more pages.
package scroll

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is the trigger's fetch state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
)

// Defaults for a Trigger.
const (
	DefaultRootMargin   = "200px"
	DefaultFetchTimeout = 15 * time.Second
)

// Entry reports a visibility change of an observed target.
type Entry struct {
	TargetID     string
	Intersecting bool
}

// Callback receives visibility changes.
type Callback func(entries []Entry)

// Observer watches targets for visibility changes.
type Observer interface {
	Observe(targetID string)
	Disconnect()
}

// ObserverFactory creates an observer that fires cb when an observed target
// comes within rootMargin of the viewport.
type ObserverFactory func(rootMargin string, cb Callback) Observer

// Pager is the paginator surface the trigger drives.
type Pager interface {
	HasMore() bool
	FetchNextPage(ctx context.Context) (bool, error)
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithRootMargin overrides DefaultRootMargin.
func WithRootMargin(margin string) Option {
	return func(t *Trigger) {
		if margin != "" {
			t.margin = margin
		}
	}
}

// WithFetchTimeout bounds each page fetch. Zero disables the deadline.
func WithFetchTimeout(d time.Duration) Option {
	return func(t *Trigger) {
		t.timeout = d
	}
}

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trigger) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithOnSettle registers a hook called after every fetch settles.
func WithOnSettle(fn func(loaded bool, err error)) Option {
	return func(t *Trigger) {
		t.onSettle = fn
	}
}

// Trigger is safe for concurrent use.
type Trigger struct {
	pager    Pager
	factory  ObserverFactory
	margin   string
	timeout  time.Duration
	logger   *slog.Logger
	onSettle func(loaded bool, err error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    State
	bound    string
	observer Observer
	closed   bool
}

// New creates an idle trigger with nothing bound.
func New(pager Pager, factory ObserverFactory, opts ...Option) *Trigger {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Trigger{
		pager:   pager,
		factory: factory,
		margin:  DefaultRootMargin,
		timeout: DefaultFetchTimeout,
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bind observes lastItemID. Binding the already bound ID is a no-op;
// otherwise the previous observer is disconnected first. An empty ID only
// disconnects.
func (t *Trigger) Bind(lastItemID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || lastItemID == t.bound {
		return
	}
	if t.observer != nil {
		t.observer.Disconnect()
		t.observer = nil
	}
	t.bound = lastItemID
	if lastItemID == "" {
		return
	}
	t.observer = t.factory(t.margin, t.handle)
	t.observer.Observe(lastItemID)
}

func (t *Trigger) handle(entries []Entry) {
	for _, e := range entries {
		if !e.Intersecting {
			continue
		}
		t.mu.Lock()
		bound := t.bound
		t.mu.Unlock()
		if e.TargetID == bound {
			t.fire()
			return
		}
	}
}

// fire starts a fetch when idle and the pager has more pages.
func (t *Trigger) fire() {
	t.mu.Lock()
	if t.closed || t.state == StateLoading || !t.pager.HasMore() {
		t.mu.Unlock()
		return
	}
	t.state = StateLoading
	t.wg.Add(1)
	t.mu.Unlock()

	go t.fetch()
}

func (t *Trigger) fetch() {
	defer t.wg.Done()

	ctx := t.ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	loaded, err := t.pager.FetchNextPage(ctx)
	if err != nil {
		t.logger.Warn("scroll fetch failed", "error", err)
	}

	t.mu.Lock()
	t.state = StateIdle
	t.mu.Unlock()

	if t.onSettle != nil {
		t.onSettle(loaded, err)
	}
}

// State returns the current fetch state.
func (t *Trigger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Bound returns the observed target ID.
func (t *Trigger) Bound() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bound
}

// Wait blocks until no fetch is in flight.
func (t *Trigger) Wait() {
	t.wg.Wait()
}

// Close disconnects the observer, cancels an in-flight fetch and waits for it.
func (t *Trigger) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	if t.observer != nil {
		t.observer.Disconnect()
		t.observer = nil
	}
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}
