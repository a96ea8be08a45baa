package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/fakebackend"
	"github.com/roach88/feedsync/internal/model"
	"github.com/roach88/feedsync/internal/pagecache"
	"github.com/roach88/feedsync/internal/testutil"
)

type cliRun struct {
	code   int
	stdout string
	stderr string
}

func runCLI(args ...string) cliRun {
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), args, &out, &errOut)
	return cliRun{code: code, stdout: out.String(), stderr: errOut.String()}
}

// decode unpacks a JSON envelope's data into v.
func (r cliRun) decode(t *testing.T, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *ResponseError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &resp), "stdout: %s", r.stdout)
	require.Equal(t, "ok", resp.Status, "error: %+v", resp.Error)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func (r cliRun) errorCode(t *testing.T) string {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &resp), "stdout: %s", r.stdout)
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

// fakeEnv starts a fake backend with n posts and points FEED_* at it.
func fakeEnv(t *testing.T, n int, viewer string) *fakebackend.Server {
	t.Helper()
	server := fakebackend.New()
	server.Seed(testutil.Posts("p", n)...)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	t.Setenv("FEED_BASE_URL", srv.URL)
	t.Setenv("FEED_CACHE_BACKEND", "memory")
	t.Setenv("FEED_LOG_LEVEL", "error")
	t.Setenv("FEED_RETRIES", "0")
	t.Setenv("FEED_VIEWER_HANDLE", "")
	t.Setenv("FEED_TOKEN", "")
	if viewer != "" {
		t.Setenv("FEED_TOKEN", server.Token(viewer))
	}
	return server
}

func TestFeed_TwoPages(t *testing.T) {
	server := fakeEnv(t, 15, "")

	res := runCLI("feed", "--pages", "2", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var view FeedView
	res.decode(t, &view)
	assert.Len(t, view.Posts, 15)
	assert.Equal(t, 2, view.Pages)
	assert.False(t, view.HasMore)
	assert.Equal(t, "p-015", view.Posts[0].ID)
	assert.Equal(t, 2, server.Calls(fakebackend.RouteListPosts))
}

func TestFeed_Text(t *testing.T) {
	fakeEnv(t, 3, "")

	res := runCLI("feed")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "p-003")
	assert.Contains(t, res.stdout, "3 posts, 1 pages, end of feed")
}

func TestFeed_PremiumIsLocked(t *testing.T) {
	server := fakeEnv(t, 0, "@reader")
	server.Seed(testutil.PremiumPost("prem", "@creator"))

	res := runCLI("feed", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var view FeedView
	res.decode(t, &view)
	require.Len(t, view.Posts, 1)
	assert.True(t, view.Posts[0].Locked)
	assert.Empty(t, view.Posts[0].Content)
}

func TestLike(t *testing.T) {
	server := fakeEnv(t, 15, "@reader")

	res := runCLI("like", "p-001", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var view PostView
	res.decode(t, &view)
	assert.True(t, view.Liked)
	assert.Equal(t, 1, view.Likes)

	remote, _ := server.Post("p-001")
	assert.Equal(t, 1, remote.Likes)
}

func TestLike_SignedOut(t *testing.T) {
	fakeEnv(t, 2, "")

	res := runCLI("like", "p-001", "--format", "json")
	assert.Equal(t, ExitFailure, res.code)
	assert.Equal(t, "AUTH_MISSING", res.errorCode(t))
}

func TestLike_ServerFailure(t *testing.T) {
	server := fakeEnv(t, 2, "@reader")
	server.FailNext(fakebackend.RouteToggleLike, http.StatusInternalServerError)

	res := runCLI("like", "p-002", "--format", "json")
	assert.Equal(t, ExitFailure, res.code)
	assert.Equal(t, "REQUEST_FAILED", res.errorCode(t))
}

func TestDelete(t *testing.T) {
	server := fakeEnv(t, 4, "@author")

	res := runCLI("delete", "p-004")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "deleted p-004\n", res.stdout)
	assert.Equal(t, 3, server.Len())
}

func TestDelete_NotAuthor(t *testing.T) {
	server := fakeEnv(t, 4, "@reader")

	res := runCLI("delete", "p-004", "--format", "json")
	assert.Equal(t, ExitFailure, res.code)
	assert.Equal(t, "NOT_AUTHOR", res.errorCode(t))
	assert.Equal(t, 4, server.Len())
}

func TestPost(t *testing.T) {
	server := fakeEnv(t, 1, "@author")

	res := runCLI("post", "hello", "world", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var view PostView
	res.decode(t, &view)
	assert.Equal(t, "@author", view.Author)
	assert.Equal(t, "hello world", view.Content)
	assert.Equal(t, 2, server.Len())
}

func TestShow_WithComment(t *testing.T) {
	fakeEnv(t, 3, "@reader")

	res := runCLI("show", "p-002", "--comment", "nice one", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var view ShowView
	res.decode(t, &view)
	assert.Equal(t, "p-002", view.Post.ID)
	assert.Equal(t, 1, view.Post.Comments)
	require.Len(t, view.Comments, 1)
	assert.Equal(t, CommentView{Author: "@reader", Content: "nice one"}, view.Comments[0])
}

func TestShow_AccessReason(t *testing.T) {
	server := fakeEnv(t, 0, "@reader")
	server.Seed(testutil.PremiumPost("prem", "@creator"))

	res := runCLI("show", "prem", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var view ShowView
	res.decode(t, &view)
	assert.True(t, view.Post.Locked)
	assert.Equal(t, "denied", view.Access)

	server.SetSubscriptions("@reader", model.Subscriptions{Creators: []model.CreatorSubscription{
		{CreatorID: "creator", Status: model.SubscriptionActive},
	}})
	res = runCLI("show", "prem")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "access: creator_subscription")
	assert.Contains(t, res.stdout, "post prem")
}

func TestShow_NotFound(t *testing.T) {
	fakeEnv(t, 1, "")

	res := runCLI("show", "missing", "--format", "json")
	assert.Equal(t, ExitFailure, res.code)
	assert.Equal(t, "HTTP_404", res.errorCode(t))
}

func TestCache_PersistsAcrossRuns(t *testing.T) {
	server := fakeEnv(t, 15, "")
	t.Setenv("FEED_CACHE_BACKEND", "sqlite")
	t.Setenv("FEED_SQLITE_PATH", filepath.Join(t.TempDir(), "feed.db"))

	require.Equal(t, ExitSuccess, runCLI("feed").code)
	require.Equal(t, ExitSuccess, runCLI("feed").code)
	assert.Equal(t, 1, server.Calls(fakebackend.RouteListPosts), "second run is served from the persisted page")

	res := runCLI("cache", "show", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var view CacheView
	res.decode(t, &view)
	assert.True(t, view.Present)
	assert.True(t, view.Fresh)
	assert.Equal(t, 10, view.Posts)
	assert.Equal(t, "p-005", view.Cursor)
	assert.Equal(t, []string{pagecache.Key}, view.Slots)
	assert.False(t, view.WrittenAt.IsZero())

	require.Equal(t, ExitSuccess, runCLI("cache", "clear").code)

	res = runCLI("cache", "show")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "sqlite cache: empty\n", res.stdout)
}

func TestFeed_RefreshSkipsCache(t *testing.T) {
	server := fakeEnv(t, 5, "")
	t.Setenv("FEED_CACHE_BACKEND", "sqlite")
	t.Setenv("FEED_SQLITE_PATH", filepath.Join(t.TempDir(), "feed.db"))

	require.Equal(t, ExitSuccess, runCLI("feed").code)
	require.Equal(t, ExitSuccess, runCLI("feed", "--refresh").code)
	assert.Equal(t, 2, server.Calls(fakebackend.RouteListPosts))
}

func TestScenarioCommand(t *testing.T) {
	dir := filepath.Join("..", "harness", "testdata", "scenarios")

	res := runCLI("scenario", dir)
	require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)
	assert.Contains(t, res.stdout, "✓ ten_plus_five")
	assert.Contains(t, res.stdout, "0 failed, 7 total")
}

func TestScenarioCommand_FilterAndTrace(t *testing.T) {
	dir := filepath.Join("..", "harness", "testdata", "scenarios")

	res := runCLI("scenario", dir, "--filter", "like_*", "--trace", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var report ScenarioReport
	res.decode(t, &report)
	require.Equal(t, 1, report.Total)
	assert.Equal(t, "like_rollback", report.Scenarios[0].Name)
	assert.Len(t, report.Scenarios[0].Trace, 8)
}

func TestScenarioCommand_MissingPath(t *testing.T) {
	res := runCLI("scenario", filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, ExitCommandError, res.code)
}

func TestInvalidFormat(t *testing.T) {
	res := runCLI("feed", "--format", "xml")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "invalid format")
}

func TestInvalidConfig(t *testing.T) {
	fakeEnv(t, 1, "")
	t.Setenv("FEED_PAGE_SIZE", "0")

	res := runCLI("feed", "--format", "json")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Equal(t, "CONFIG_INVALID", res.errorCode(t))
}

func TestInvalidToken(t *testing.T) {
	fakeEnv(t, 1, "")
	t.Setenv("FEED_TOKEN", "not-a-jwt")

	res := runCLI("feed", "--format", "json")
	assert.Equal(t, ExitCommandError, res.code)
}
