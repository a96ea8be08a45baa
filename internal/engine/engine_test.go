package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/api"
	"github.com/roach88/feedsync/internal/auth"
	"github.com/roach88/feedsync/internal/model"
	"github.com/roach88/feedsync/internal/pagecache"
	"github.com/roach88/feedsync/internal/poststore"
	"github.com/roach88/feedsync/internal/revalidate"
	"github.com/roach88/feedsync/internal/testutil"
)

type fakeBackend struct {
	mu          sync.Mutex
	likeErr     error
	likeResult  *bool
	deleteErr   error
	createErr   error
	commentErr  error
	likeCalls   int
	deleteCalls int
	tokens      []string
}

func (b *fakeBackend) ToggleLike(_ context.Context, token, _ string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.likeCalls++
	b.tokens = append(b.tokens, token)
	if b.likeErr != nil {
		return false, b.likeErr
	}
	if b.likeResult != nil {
		return *b.likeResult, nil
	}
	return true, nil
}

func (b *fakeBackend) DeletePost(_ context.Context, token, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteCalls++
	b.tokens = append(b.tokens, token)
	return b.deleteErr
}

func (b *fakeBackend) CreatePost(_ context.Context, _ string, draft model.PostDraft) (model.Post, error) {
	if b.createErr != nil {
		return model.Post{}, b.createErr
	}
	p := testutil.Post("created-1", "@me")
	p.Content = draft.Content
	return p, nil
}

func (b *fakeBackend) CreateComment(_ context.Context, _, postID, content string) (model.Comment, error) {
	if b.commentErr != nil {
		return model.Comment{}, b.commentErr
	}
	return model.Comment{ID: "c1", PostID: postID, Content: content}, nil
}

type countingPager struct {
	calls       int
	invalidated int
	hidden      map[string]bool
}

func (r *countingPager) Hide(id string) {
	if r.hidden == nil {
		r.hidden = make(map[string]bool)
	}
	r.hidden[id] = true
}

func (r *countingPager) Unhide(id string) {
	delete(r.hidden, id)
}

func (r *countingPager) Resync(context.Context) error {
	r.calls++
	return nil
}

func (r *countingPager) Invalidate() {
	r.invalidated++
}

type fixture struct {
	backend *fakeBackend
	posts   *poststore.Store
	pages   *pagecache.Cache
	cache   *revalidate.Cache
	pager   *countingPager
	notices []Notice
	events  []Event
	viewer  model.Viewer
	engine  *Engine
}

func newFixture(t *testing.T, tokens auth.Provider) *fixture {
	t.Helper()
	f := &fixture{
		backend: &fakeBackend{},
		posts:   poststore.New(),
		pages:   pagecache.New(pagecache.NewMemoryBackend()),
		cache:   revalidate.New(),
		pager:   &countingPager{},
		viewer:  model.Viewer{Handle: "@me"},
	}
	f.engine = New(Deps{
		Backend: f.backend,
		Tokens:  tokens,
		Posts:   f.posts,
		Pages:   f.pages,
		Cache:   f.cache,
		Pager:   f.pager,
		Viewer:  func() model.Viewer { return f.viewer },
	},
		WithIDGenerator(NewFixedGenerator()),
		WithNotifier(NotifierFunc(func(_ context.Context, n Notice) { f.notices = append(f.notices, n) })),
		WithTrace(func(ev Event) { f.events = append(f.events, ev) }),
	)
	return f
}

func (f *fixture) phases() []Phase {
	out := make([]Phase, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Phase
	}
	return out
}

func seedPost(f *fixture, likes int, liked bool) model.Post {
	p := testutil.Post("p1", "@author")
	p.Likes = likes
	p.Liked = liked
	f.posts.MergeInsert([]model.Post{p})
	return p
}

func TestToggleLike_Commit(t *testing.T) {
	f := newFixture(t, auth.Static("tok"))
	seedPost(f, 5, false)

	require.NoError(t, f.engine.ToggleLike(context.Background(), "p1", 5, false))

	got, _ := f.posts.Get("p1")
	assert.True(t, got.Liked)
	assert.Equal(t, 6, got.Likes)
	assert.Equal(t, []Phase{PhaseApplied, PhaseCommitted}, f.phases())
	assert.Equal(t, []string{"tok"}, f.backend.tokens)
	assert.Empty(t, f.notices)
}

func TestToggleLike_RollbackRestoresExactPriorPair(t *testing.T) {
	f := newFixture(t, auth.Static("tok"))
	seedPost(f, 5, false)
	f.backend.likeErr = &api.APIError{Op: "toggle like", Status: 500}

	var sawOptimistic bool
	f.posts.Subscribe(func(uint64) {
		if p, _ := f.posts.Get("p1"); p.Liked && p.Likes == 6 {
			sawOptimistic = true
		}
	})

	err := f.engine.ToggleLike(context.Background(), "p1", 5, false)
	require.Error(t, err)
	assert.True(t, IsRequestFailed(err))
	assert.True(t, api.IsServerError(err))

	got, _ := f.posts.Get("p1")
	assert.False(t, got.Liked)
	assert.Equal(t, 5, got.Likes)
	assert.True(t, sawOptimistic, "the optimistic pair was visible before rollback")
	assert.Equal(t, []Phase{PhaseApplied, PhaseRolledBack}, f.phases())
	require.Len(t, f.notices, 1)
	assert.Equal(t, "failed to update like", f.notices[0].Message)
	assert.Equal(t, 1, f.backend.likeCalls, "mutations are never retried")
}

func TestToggleLike_UnlikeNeverBelowZero(t *testing.T) {
	f := newFixture(t, auth.Static("tok"))
	seedPost(f, 0, true)
	liked := false
	f.backend.likeResult = &liked

	require.NoError(t, f.engine.ToggleLike(context.Background(), "p1", 0, true))

	got, _ := f.posts.Get("p1")
	assert.False(t, got.Liked)
	assert.Equal(t, 0, got.Likes)
}

func TestToggleLike_FollowsDivergentBackend(t *testing.T) {
	f := newFixture(t, auth.Static("tok"))
	seedPost(f, 5, false)
	liked := false
	f.backend.likeResult = &liked

	require.NoError(t, f.engine.ToggleLike(context.Background(), "p1", 5, false))

	got, _ := f.posts.Get("p1")
	assert.False(t, got.Liked)
	assert.Equal(t, 5, got.Likes)
}

func TestToggleLike_NoTokenNoStateChange(t *testing.T) {
	f := newFixture(t, auth.Anonymous)
	seedPost(f, 5, false)
	before := f.posts.Version()

	err := f.engine.ToggleLike(context.Background(), "p1", 5, false)
	require.Error(t, err)
	assert.True(t, IsAuthMissing(err))
	assert.ErrorIs(t, err, ErrSignInRequired)

	assert.Equal(t, before, f.posts.Version())
	assert.Equal(t, 0, f.backend.likeCalls)
	assert.Equal(t, []Phase{PhaseRejected}, f.phases())
	require.Len(t, f.notices, 1)
	assert.Equal(t, "please sign in", f.notices[0].Message)
}

func TestToggleLike_TokenProviderError(t *testing.T) {
	f := newFixture(t, auth.Func(func(context.Context) (string, error) {
		return "", errors.New("refresh failed")
	}))
	seedPost(f, 1, false)

	err := f.engine.ToggleLike(context.Background(), "p1", 1, false)
	assert.True(t, IsAuthMissing(err))
}

func TestDelete_NotAuthor(t *testing.T) {
	f := newFixture(t, auth.Static("tok"))
	post := seedPost(f, 0, false)

	err := f.engine.Delete(context.Background(), post)
	require.Error(t, err)
	assert.True(t, IsNotAuthor(err))
	assert.ErrorIs(t, err, ErrNotAuthor)

	assert.Equal(t, 0, f.backend.deleteCalls, "no request is sent")
	assert.Equal(t, 0, f.pager.invalidated)
	_, ok := f.posts.Get("p1")
	assert.True(t, ok, "no state change")
}

func TestDelete_SuccessClearsCaches(t *testing.T) {
	f := newFixture(t, auth.Static("tok"))
	post := testutil.Post("mine", "@me")
	f.posts.MergeInsert([]model.Post{post, testutil.Post("other", "@x")})
	ctx := context.Background()
	f.pages.Write(ctx, model.Page{Posts: f.posts.Posts()})
	_, _ = f.cache.Get(ctx, revalidate.Key{PageSize: 10}, func(context.Context) (model.Page, error) {
		return model.Page{Posts: f.posts.Posts()}, nil
	})

	require.NoError(t, f.engine.Delete(ctx, post))

	_, ok := f.posts.Get("mine")
	assert.False(t, ok)
	_, ok = f.pages.Read(ctx)
	assert.False(t, ok, "persisted page cleared")
	assert.Equal(t, 0, f.cache.Len(), "revalidation cache invalidated")
	assert.Equal(t, 1, f.pager.invalidated, "in-flight pages invalidated on commit")
	assert.True(t, f.pager.hidden["mine"], "deleted post stays out of later pages")
	assert.Equal(t, 0, f.pager.calls)
	assert.Equal(t, []Phase{PhaseApplied, PhaseCommitted}, f.phases())
}

func TestDelete_FailureTriggersResync(t *testing.T) {
	f := newFixture(t, auth.Static("tok"))
	post := testutil.Post("mine", "@me")
	f.posts.MergeInsert([]model.Post{post})
	f.backend.deleteErr = &api.APIError{Op: "delete post", Status: 503}

	err := f.engine.Delete(context.Background(), post)
	assert.True(t, IsRequestFailed(err))

	_, ok := f.posts.Get("mine")
	assert.False(t, ok, "no local rollback for deletes")
	assert.Equal(t, 1, f.pager.calls)
	assert.False(t, f.pager.hidden["mine"], "resync may bring the surviving post back")
	assert.Equal(t, []Phase{PhaseApplied, PhaseFailed}, f.phases())
	require.Len(t, f.notices, 1)
	assert.Equal(t, "failed to delete post", f.notices[0].Message)
}

func TestDelete_HandleComparisonIsNormalized(t *testing.T) {
	f := newFixture(t, auth.Static("tok"))
	f.viewer = model.Viewer{Handle: "@caf\u00e9"}
	post := testutil.Post("p", "@cafe\u0301")
	f.posts.MergeInsert([]model.Post{post})

	require.NoError(t, f.engine.Delete(context.Background(), post))
	assert.Equal(t, 1, f.backend.deleteCalls)
}

func TestCreate_InsertsAtHead(t *testing.T) {
	f := newFixture(t, auth.Static("tok"))
	f.posts.MergeInsert(testutil.Posts("p", 2))
	ctx := context.Background()
	f.pages.Write(ctx, model.Page{Posts: f.posts.Posts()})

	post, err := f.engine.Create(ctx, model.PostDraft{Content: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "created-1", post.ID)
	assert.Equal(t, []string{"created-1", "p-001", "p-002"}, testutil.IDs(f.posts.Posts()))
	_, ok := f.pages.Read(ctx)
	assert.False(t, ok)
	assert.Equal(t, 1, f.pager.invalidated)
}

func TestCreate_Failure(t *testing.T) {
	f := newFixture(t, auth.Static("tok"))
	f.backend.createErr = errors.New("boom")

	_, err := f.engine.Create(context.Background(), model.PostDraft{Content: "x"})
	assert.True(t, IsRequestFailed(err))
	assert.Equal(t, 0, f.posts.Len())
}

func TestAddComment_BumpsCounter(t *testing.T) {
	f := newFixture(t, auth.Static("tok"))
	p := seedPost(f, 0, false)

	c, err := f.engine.AddComment(context.Background(), p.ID, "nice", p.Comments)
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)

	got, _ := f.posts.Get("p1")
	assert.Equal(t, 1, got.Comments)
}

func TestAddComment_FailureRestoresCounter(t *testing.T) {
	f := newFixture(t, auth.Static("tok"))
	p := seedPost(f, 0, false)
	f.backend.commentErr = errors.New("boom")

	_, err := f.engine.AddComment(context.Background(), p.ID, "nice", p.Comments)
	assert.True(t, IsRequestFailed(err))

	got, _ := f.posts.Get("p1")
	assert.Equal(t, 0, got.Comments)
	assert.Equal(t, []Phase{PhaseApplied, PhaseRolledBack}, f.phases())
}

func TestEvents_SequenceAndIDs(t *testing.T) {
	f := newFixture(t, auth.Static("tok"))
	seedPost(f, 0, false)

	_ = f.engine.ToggleLike(context.Background(), "p1", 0, false)
	_ = f.engine.ToggleLike(context.Background(), "p1", 1, true)

	require.Len(t, f.events, 4)
	for i, ev := range f.events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Equal(t, "mutation-1", f.events[0].MutationID)
	assert.Equal(t, "mutation-2", f.events[2].MutationID)
}

func TestMutationError_Message(t *testing.T) {
	err := &MutationError{Code: ErrCodeRequestFailed, Mutation: MutationDelete, PostID: "p1", Err: errors.New("boom")}
	assert.Equal(t, "REQUEST_FAILED: delete_post (post=p1): boom", err.Error())
}
