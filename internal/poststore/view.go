package poststore

import "github.com/roach88/feedsync/internal/model"

// SetFocused shows post in the single-post view and records it in the lookup cache.
func (s *Store) SetFocused(post model.Post) {
	s.mu.Lock()
	p := post
	s.focused = &p
	s.lookup[post.ID] = post
	s.changedLocked()
}

// Focused returns the post in the single-post view.
func (s *Store) Focused() (model.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.focused == nil {
		return model.Post{}, false
	}
	return *s.focused, true
}

// ClearFocused empties the single-post view. The lookup cache is kept.
func (s *Store) ClearFocused() {
	s.mu.Lock()
	if s.focused == nil {
		s.mu.Unlock()
		return
	}
	s.focused = nil
	s.changedLocked()
}

// Cached returns a post from the collection, falling back to posts previously
// opened in the single-post view.
func (s *Store) Cached(id string) (model.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[id]; ok {
		return s.posts[i], true
	}
	p, ok := s.lookup[id]
	return p, ok
}

// Status returns the current UI status.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetLoading sets the loading flag.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	if s.status.Loading == loading {
		s.mu.Unlock()
		return
	}
	s.status.Loading = loading
	s.changedLocked()
}

// SetError records the last fetch error. Nil clears it.
func (s *Store) SetError(err error) {
	s.mu.Lock()
	s.status.Err = err
	s.changedLocked()
}

// SetHasMore records whether more pages exist.
func (s *Store) SetHasMore(hasMore bool) {
	s.mu.Lock()
	if s.status.HasMore == hasMore {
		s.mu.Unlock()
		return
	}
	s.status.HasMore = hasMore
	s.changedLocked()
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
