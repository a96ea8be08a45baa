package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsync/internal/model"
	"github.com/roach88/feedsync/internal/testutil"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRetryInterval(time.Millisecond)}, opts...)
	return New(srv.URL, opts...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListPosts_RequestShape(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotAuth = r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, model.Page{Posts: testutil.Posts("p", 2), NextPageCursor: "p-003"})
	})

	page, err := c.ListPosts(context.Background(), "tok", "p-001", 10)
	require.NoError(t, err)

	assert.Equal(t, "/api/social/posts", gotPath)
	assert.Equal(t, "lastId=p-001&limit=10", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, []string{"p-001", "p-002"}, testutil.IDs(page.Posts))
	assert.Equal(t, "p-003", page.NextPageCursor)
}

func TestListPosts_NoTokenNoHeader(t *testing.T) {
	var hadAuth bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, hadAuth = r.Header["Authorization"]
		assert.Empty(t, r.URL.Query().Get("lastId"))
		writeJSON(w, http.StatusOK, model.Page{})
	})

	_, err := c.ListPosts(context.Background(), "", "", 10)
	require.NoError(t, err)
	assert.False(t, hadAuth)
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream"})
			return
		}
		writeJSON(w, http.StatusOK, model.Page{})
	})

	_, err := c.ListPosts(context.Background(), "", "", 10)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_RetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "down"})
	}, WithRetries(1))

	_, err := c.ListPosts(context.Background(), "", "", 10)
	require.Error(t, err)
	assert.True(t, IsServerError(err))
	assert.Equal(t, int32(2), calls.Load())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "down", apiErr.Message)
	assert.Equal(t, "list posts", apiErr.Op)
}

func TestGet_ClientErrorsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Post not found"})
	})

	_, err := c.GetPost(context.Background(), "", "gone")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestMutations_NeverRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.ToggleLike(context.Background(), "tok", "p1")
	assert.True(t, IsServerError(err))
	err = c.DeletePost(context.Background(), "tok", "p1")
	assert.True(t, IsServerError(err))

	assert.Equal(t, int32(2), calls.Load())
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(20*time.Millisecond), WithRetries(0))
	defer close(release)

	_, err := c.ListPosts(context.Background(), "", "", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestToggleLike(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/social/posts/p1/like", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"liked": true, "message": "Post liked"})
	})

	liked, err := c.ToggleLike(context.Background(), "tok", "p1")
	require.NoError(t, err)
	assert.True(t, liked)
}

func TestDeletePost_Forbidden(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Not authorized to delete this post"})
	})

	err := c.DeletePost(context.Background(), "tok", "p1")
	assert.True(t, IsForbidden(err))
	assert.False(t, IsNotFound(err))
}

func TestCreatePost(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var draft model.PostDraft
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &draft))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		post := testutil.Post("", "@me")
		post.Content = draft.Content
		writeJSON(w, http.StatusCreated, map[string]any{"message": "Post created successfully", "post_id": "new-1", "data": post})
	})

	post, err := c.CreatePost(context.Background(), "tok", model.PostDraft{Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "new-1", post.ID)
	assert.Equal(t, "hello", post.Content)
}

func TestComments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/social/posts/p1/comments", r.URL.Path)
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, []model.Comment{{ID: "c1", PostID: "p1", Content: "first"}})
			return
		}
		writeJSON(w, http.StatusCreated, model.Comment{ID: "c2", PostID: "p1", Content: "second"})
	})

	comments, err := c.ListComments(context.Background(), "tok", "p1")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "first", comments[0].Content)

	created, err := c.CreateComment(context.Background(), "tok", "p1", "second")
	require.NoError(t, err)
	assert.Equal(t, "c2", created.ID)
}

func TestViewerSnapshots(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/permissions":
			writeJSON(w, http.StatusOK, map[string]any{"isPremium": true, "subscriptionTier": "platform-premium"})
		case "/api/subscriptions/status":
			writeJSON(w, http.StatusOK, map[string]any{
				"platformSubscription": nil,
				"creatorSubscriptions": []map[string]string{{"id": "s1", "creatorId": "alice", "status": "active"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	perms, err := c.Permissions(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, perms.IsPremium)

	subs, err := c.Subscriptions(context.Background(), "tok")
	require.NoError(t, err)
	assert.Nil(t, subs.Platform)
	require.Len(t, subs.Creators, 1)
	assert.True(t, subs.Creators[0].Active())
}

func TestUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Permissions(context.Background(), "expired")
	assert.True(t, IsUnauthorized(err))
}
