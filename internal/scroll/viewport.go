package scroll

import "sync"

// Viewport is an in-process ObserverFactory for headless clients. Callers
// report which items are visible with Reveal; observers watching one of
// them fire synchronously.
type Viewport struct {
	mu        sync.Mutex
	observers map[*viewportObserver]struct{}
	created   int
}

// NewViewport creates an empty viewport.
func NewViewport() *Viewport {
	return &Viewport{observers: make(map[*viewportObserver]struct{})}
}

// Factory returns the ObserverFactory bound to this viewport.
func (v *Viewport) Factory() ObserverFactory {
	return func(rootMargin string, cb Callback) Observer {
		o := &viewportObserver{viewport: v, margin: rootMargin, cb: cb}
		v.mu.Lock()
		v.observers[o] = struct{}{}
		v.created++
		v.mu.Unlock()
		return o
	}
}

// Reveal reports ids as having entered the viewport.
func (v *Viewport) Reveal(ids ...string) {
	visible := make(map[string]bool, len(ids))
	for _, id := range ids {
		visible[id] = true
	}

	v.mu.Lock()
	var fire []*viewportObserver
	for o := range v.observers {
		fire = append(fire, o)
	}
	v.mu.Unlock()

	for _, o := range fire {
		o.deliver(visible)
	}
}

// Active returns the number of connected observers.
func (v *Viewport) Active() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.observers)
}

// Created returns how many observers were ever created.
func (v *Viewport) Created() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.created
}

// Targets returns the IDs watched by connected observers.
func (v *Viewport) Targets() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	for o := range v.observers {
		out = append(out, o.targetIDs()...)
	}
	return out
}

type viewportObserver struct {
	viewport *Viewport
	margin   string
	cb       Callback

	mu      sync.Mutex
	targets []string
}

func (o *viewportObserver) Observe(targetID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.targets = append(o.targets, targetID)
}

func (o *viewportObserver) Disconnect() {
	o.viewport.mu.Lock()
	delete(o.viewport.observers, o)
	o.viewport.mu.Unlock()
}

func (o *viewportObserver) targetIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.targets...)
}

func (o *viewportObserver) deliver(visible map[string]bool) {
	var entries []Entry
	for _, id := range o.targetIDs() {
		if visible[id] {
			entries = append(entries, Entry{TargetID: id, Intersecting: true})
		}
	}
	if len(entries) > 0 {
		o.cb(entries)
	}
}
