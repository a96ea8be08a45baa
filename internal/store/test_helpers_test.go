package store

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new store in a per-test temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedNow pins the store's write clock.
func fixedNow(s *Store, at time.Time) {
	s.now = func() time.Time { return at }
}
