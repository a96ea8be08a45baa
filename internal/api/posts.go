package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/roach88/feedsync/internal/model"
)

const socialPrefix = "/api/social"

func postPath(id string) string {
	return socialPrefix + "/posts/" + url.PathEscape(id)
}

// ListPosts fetches one page. An empty cursor requests the newest posts.
func (c *Client) ListPosts(ctx context.Context, token, cursor string, limit int) (model.Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("lastId", cursor)
	}
	var page model.Page
	err := c.do(ctx, call{
		op:     "list posts",
		method: http.MethodGet,
		path:   socialPrefix + "/posts",
		query:  q,
		token:  token,
		out:    &page,
	})
	return page, err
}

// GetPost fetches a single post.
func (c *Client) GetPost(ctx context.Context, token, id string) (model.Post, error) {
	var post model.Post
	err := c.do(ctx, call{
		op:     "get post",
		method: http.MethodGet,
		path:   postPath(id),
		token:  token,
		out:    &post,
	})
	if err == nil && post.ID == "" {
		post.ID = id
	}
	return post, err
}

// ToggleLike flips the viewer's like on a post and returns the new state.
func (c *Client) ToggleLike(ctx context.Context, token, id string) (bool, error) {
	var out struct {
		Liked bool `json:"liked"`
	}
	err := c.do(ctx, call{
		op:     "toggle like",
		method: http.MethodPost,
		path:   postPath(id) + "/like",
		token:  token,
		out:    &out,
	})
	return out.Liked, err
}

// DeletePost removes a post authored by the viewer.
func (c *Client) DeletePost(ctx context.Context, token, id string) error {
	return c.do(ctx, call{
		op:     "delete post",
		method: http.MethodDelete,
		path:   postPath(id),
		token:  token,
	})
}

// CreatePost publishes a new post and returns it as stored by the backend.
func (c *Client) CreatePost(ctx context.Context, token string, draft model.PostDraft) (model.Post, error) {
	var out struct {
		PostID string     `json:"post_id"`
		Data   model.Post `json:"data"`
	}
	err := c.do(ctx, call{
		op:     "create post",
		method: http.MethodPost,
		path:   socialPrefix + "/posts",
		token:  token,
		body:   draft,
		out:    &out,
	})
	if err == nil && out.Data.ID == "" {
		out.Data.ID = out.PostID
	}
	return out.Data, err
}

// ListComments fetches the comments on a post.
func (c *Client) ListComments(ctx context.Context, token, postID string) ([]model.Comment, error) {
	var out []model.Comment
	err := c.do(ctx, call{
		op:     "list comments",
		method: http.MethodGet,
		path:   postPath(postID) + "/comments",
		token:  token,
		out:    &out,
	})
	return out, err
}

// CreateComment adds a comment to a post.
func (c *Client) CreateComment(ctx context.Context, token, postID, content string) (model.Comment, error) {
	var out model.Comment
	err := c.do(ctx, call{
		op:     "create comment",
		method: http.MethodPost,
		path:   postPath(postID) + "/comments",
		token:  token,
		body:   map[string]string{"content": content},
		out:    &out,
	})
	return out, err
}
