// Package poststore holds the normalized, in-memory post collection that every
// feed view reads from.
//
// There is exactly one post per ID. Writers go through MergeInsert, Replace,
// InsertOne, Patch and Remove; readers get copies and never alias the
// internal slices.
package poststore

import (
	"sync"

	"github.com/roach88/feedsync/internal/model"
)

// Status is the UI-facing state of the feed.
type Status struct {
	Loading bool
	Err     error
	HasMore bool
}

// Listener is called with the store version after every change.
// Listeners run synchronously after the store lock is released.
type Listener func(version uint64)

// Store is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	posts     []model.Post
	index     map[string]int
	focused   *model.Post
	lookup    map[string]model.Post
	status    Status
	version   uint64
	nextSub   int
	listeners map[int]Listener
}

// New creates an empty store. HasMore starts true so the first page can load.
func New() *Store {
	return &Store{
		index:     make(map[string]int),
		lookup:    make(map[string]model.Post),
		status:    Status{HasMore: true},
		listeners: make(map[int]Listener),
	}
}

// MergeInsert appends every post whose ID is not yet present, in arrival
// order. Existing posts are left untouched. Returns the number appended.
func (s *Store) MergeInsert(posts []model.Post) int {
	s.mu.Lock()
	added := 0
	for _, p := range posts {
		if _, ok := s.index[p.ID]; ok {
			continue
		}
		s.index[p.ID] = len(s.posts)
		s.posts = append(s.posts, p)
		added++
	}
	if added == 0 {
		s.mu.Unlock()
		return 0
	}
	s.changedLocked()
	return added
}

// Replace makes the collection exactly posts, deduplicated by first occurrence.
func (s *Store) Replace(posts []model.Post) {
	s.mu.Lock()
	s.posts = make([]model.Post, 0, len(posts))
	s.index = make(map[string]int, len(posts))
	for _, p := range posts {
		if _, ok := s.index[p.ID]; ok {
			continue
		}
		s.index[p.ID] = len(s.posts)
		s.posts = append(s.posts, p)
	}
	s.changedLocked()
}

// InsertOne places post at the head of the collection unless its ID is
// already present. Returns whether the post was inserted.
func (s *Store) InsertOne(post model.Post) bool {
	s.mu.Lock()
	if _, ok := s.index[post.ID]; ok {
		s.mu.Unlock()
		return false
	}
	s.posts = append([]model.Post{post}, s.posts...)
	s.reindexLocked()
	s.changedLocked()
	return true
}

// Patch shallow-merges patch into the post with the given ID and mirrors the
// change into the focused view when it shows the same post.
func (s *Store) Patch(id string, patch model.PostPatch) bool {
	s.mu.Lock()
	patched := false
	if i, ok := s.index[id]; ok {
		s.posts[i] = patch.Apply(s.posts[i])
		patched = true
	}
	if s.focused != nil && s.focused.ID == id {
		p := patch.Apply(*s.focused)
		s.focused = &p
		patched = true
	}
	if cached, ok := s.lookup[id]; ok {
		s.lookup[id] = patch.Apply(cached)
	}
	if !patched {
		s.mu.Unlock()
		return false
	}
	s.changedLocked()
	return true
}

// Remove deletes the post from the collection, the focused view and the
// lookup cache. Removing an unknown ID is a no-op.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	removed := false
	if i, ok := s.index[id]; ok {
		s.posts = append(s.posts[:i], s.posts[i+1:]...)
		s.reindexLocked()
		removed = true
	}
	if s.focused != nil && s.focused.ID == id {
		s.focused = nil
		removed = true
	}
	if _, ok := s.lookup[id]; ok {
		delete(s.lookup, id)
		removed = true
	}
	if !removed {
		s.mu.Unlock()
		return false
	}
	s.changedLocked()
	return true
}

// Get returns the post with the given ID from the collection.
func (s *Store) Get(id string) (model.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return model.Post{}, false
	}
	return s.posts[i], true
}

// Posts returns a copy of the collection in display order.
func (s *Store) Posts() []model.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Post, len(s.posts))
	copy(out, s.posts)
	return out
}

// Len returns the number of posts in the collection.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

// Version increases by one after every change.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Clear empties the collection, the focused view and the lookup cache and
// resets the status.
func (s *Store) Clear() {
	s.mu.Lock()
	s.posts = nil
	s.index = make(map[string]int)
	s.focused = nil
	s.lookup = make(map[string]model.Post)
	s.status = Status{HasMore: true}
	s.changedLocked()
}

func (s *Store) reindexLocked() {
	s.index = make(map[string]int, len(s.posts))
	for i, p := range s.posts {
		s.index[p.ID] = i
	}
}

// changedLocked bumps the version, releases the lock and notifies listeners.
func (s *Store) changedLocked() {
	s.version++
	v := s.version
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(v)
	}
}
