package pagecache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/model"
	"github.com/roach88/feedsync/internal/store"
	"github.com/roach88/feedsync/internal/testutil"
)

func samplePage() model.Page {
	return model.Page{Posts: testutil.Posts("p", 3), NextPageCursor: "c1"}
}

func TestRead_EmptyIsMiss(t *testing.T) {
	c := New(NewMemoryBackend())
	_, ok := c.Read(context.Background())
	assert.False(t, ok)
}

func TestWriteThenRead(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	c := New(NewMemoryBackend(), WithClock(clock.Now))
	ctx := context.Background()

	c.Write(ctx, samplePage())

	page, ok := c.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, samplePage(), page)
}

func TestTTL_HitJustBeforeExpiryMissAfter(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	backend := NewMemoryBackend()
	c := New(backend, WithClock(clock.Now))
	ctx := context.Background()

	c.Write(ctx, samplePage())

	clock.Advance(119 * time.Second)
	_, ok := c.Read(ctx)
	assert.True(t, ok, "entry must be a hit at T+119s")

	clock.Advance(2 * time.Second)
	_, ok = c.Read(ctx)
	assert.False(t, ok, "entry must be a miss at T+121s")

	_, found, _ := backend.Get(ctx, Key)
	assert.False(t, found, "expired entry must be evicted on read")
}

func TestTTL_BoundaryIsInclusive(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	c := New(NewMemoryBackend(), WithClock(clock.Now))
	ctx := context.Background()

	c.Write(ctx, samplePage())
	clock.Advance(DefaultTTL)

	_, ok := c.Read(ctx)
	assert.True(t, ok)
}

func TestWithTTL(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	c := New(NewMemoryBackend(), WithClock(clock.Now), WithTTL(10*time.Second))
	ctx := context.Background()

	c.Write(ctx, samplePage())
	clock.Advance(11 * time.Second)

	_, ok := c.Read(ctx)
	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, c.TTL())
}

func TestWrite_OverwritesAndRestamps(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	c := New(NewMemoryBackend(), WithClock(clock.Now))
	ctx := context.Background()

	c.Write(ctx, samplePage())
	clock.Advance(100 * time.Second)
	c.Write(ctx, model.Page{Posts: testutil.Posts("q", 1)})
	clock.Advance(100 * time.Second)

	page, ok := c.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"q-001"}, testutil.IDs(page.Posts))
}

func TestClear(t *testing.T) {
	c := New(NewMemoryBackend())
	ctx := context.Background()

	c.Write(ctx, samplePage())
	c.Clear(ctx)

	_, ok := c.Read(ctx)
	assert.False(t, ok)
}

func TestCorruptEntryIsEvicted(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, Key, []byte("{not json")))

	c := New(backend)
	_, ok := c.Read(ctx)
	assert.False(t, ok)

	_, found, _ := backend.Get(ctx, Key)
	assert.False(t, found)
}

func TestRemovePost_KeepsTimestamp(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	c := New(NewMemoryBackend(), WithClock(clock.Now))
	ctx := context.Background()

	c.Write(ctx, samplePage())
	clock.Advance(90 * time.Second)
	c.RemovePost(ctx, "p-002")

	page, age, ok := c.Inspect(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"p-001", "p-003"}, testutil.IDs(page.Posts))
	assert.Equal(t, 90*time.Second, age)

	clock.Advance(31 * time.Second)
	_, ok = c.Read(ctx)
	assert.False(t, ok, "removal must not extend the entry's life")
}

type failingBackend struct{}

var errQuota = errors.New("quota exceeded")

func (failingBackend) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errQuota }
func (failingBackend) Set(context.Context, string, []byte) error         { return errQuota }
func (failingBackend) Delete(context.Context, string) error              { return errQuota }

func TestBackendFailuresAreSwallowed(t *testing.T) {
	c := New(failingBackend{})
	ctx := context.Background()

	assert.NotPanics(t, func() {
		c.Write(ctx, samplePage())
		c.Clear(ctx)
		c.RemovePost(ctx, "p-001")
	})

	_, ok := c.Read(ctx)
	assert.False(t, ok)
}

func TestSQLiteBackend_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s1, err := store.Open(path)
	require.NoError(t, err)
	New(NewSQLiteBackend(s1)).Write(ctx, samplePage())
	require.NoError(t, s1.Close())

	s2, err := store.Open(path)
	require.NoError(t, err)
	defer s2.Close()

	page, ok := New(NewSQLiteBackend(s2)).Read(ctx)
	require.True(t, ok)
	assert.Equal(t, "c1", page.NextPageCursor)
	assert.Len(t, page.Posts, 3)
}

func TestRedisBackend(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := testutil.NewManualClock(time.Time{})
	c := New(NewRedisBackend(client, "viewer-1"), WithClock(clock.Now))
	ctx := context.Background()

	c.Write(ctx, samplePage())
	assert.True(t, srv.Exists("viewer-1:"+Key))

	page, ok := c.Read(ctx)
	require.True(t, ok)
	assert.Len(t, page.Posts, 3)

	c.Clear(ctx)
	assert.False(t, srv.Exists("viewer-1:"+Key))
}

func TestRedisBackend_UnreachableIsMiss(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	srv.Close()

	c := New(NewRedisBackend(client, ""))
	ctx := context.Background()

	c.Write(ctx, samplePage())
	_, ok := c.Read(ctx)
	assert.False(t, ok)
}
