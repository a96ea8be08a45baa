package engine

import (
	"context"

	"github.com/roach88/feedsync/internal/model"
)

// Mutation names as they appear in logs and traces.
const (
	MutationToggleLike = "toggle_like"
	MutationDelete     = "delete_post"
	MutationCreate     = "create_post"
	MutationComment    = "add_comment"
)

// ToggleLike flips the like on a post whose current state is (likes, liked).
//
// The store shows the new pair immediately. If the request fails the prior
// pair is restored exactly. If the backend reports a like state different from
// the optimistic one, the store follows the backend.
func (e *Engine) ToggleLike(ctx context.Context, id string, likes int, liked bool) error {
	nextLiked := !liked
	nextLikes := likes + 1
	if liked {
		nextLikes = max(likes-1, 0)
	}

	return e.Apply(ctx, Mutation{
		Name:   MutationToggleLike,
		PostID: id,
		Do: func() {
			e.deps.Posts.Patch(id, model.LikePatch(nextLiked, nextLikes))
		},
		Undo: func() {
			e.deps.Posts.Patch(id, model.LikePatch(liked, likes))
		},
		Request: func(ctx context.Context, token string) error {
			serverLiked, err := e.deps.Backend.ToggleLike(ctx, token, id)
			if err != nil {
				return err
			}
			if serverLiked != nextLiked {
				e.logger.Info("like state diverged from backend", "post_id", id, "backend_liked", serverLiked)
				e.deps.Posts.Patch(id, model.LikePatch(serverLiked, likes))
			}
			return nil
		},
		FailureMessage: "failed to update like",
	})
}

// Delete removes a post authored by the viewer.
//
// The post disappears from the store and the persisted first page at once.
// There is no local rollback: a failed delete reloads the feed from the first
// page instead. A successful delete drops both page caches so no stale copy
// of the post can come back.
func (e *Engine) Delete(ctx context.Context, post model.Post) error {
	viewer := e.deps.Viewer()
	if !model.SameHandle(viewer.Handle, post.Author.Handle) {
		m := Mutation{Name: MutationDelete, PostID: post.ID}
		logger := e.logger.With("mutation", m.Name, "post_id", post.ID)
		return e.reject(ctx, logger, e.ids.Generate(), m, ErrCodeNotAuthor, ErrNotAuthor)
	}

	return e.Apply(ctx, Mutation{
		Name:   MutationDelete,
		PostID: post.ID,
		Do: func() {
			if e.deps.Pager != nil {
				e.deps.Pager.Hide(post.ID)
			}
			e.deps.Posts.Remove(post.ID)
			e.deps.Pages.RemovePost(ctx, post.ID)
		},
		Request: func(ctx context.Context, token string) error {
			return e.deps.Backend.DeletePost(ctx, token, post.ID)
		},
		OnSuccess: func(ctx context.Context) {
			e.invalidatePages()
			e.deps.Pages.Clear(ctx)
			e.deps.Cache.Invalidate()
		},
		OnFailure: func(ctx context.Context, _ error) {
			if e.deps.Pager == nil {
				return
			}
			e.deps.Pager.Unhide(post.ID)
			if err := e.deps.Pager.Resync(ctx); err != nil {
				e.logger.Warn("resync after failed delete", "post_id", post.ID, "error", err)
			}
		},
		FailureMessage: "failed to delete post",
	})
}

// Create publishes draft and places the stored post at the head of the feed.
func (e *Engine) Create(ctx context.Context, draft model.PostDraft) (model.Post, error) {
	var created model.Post
	err := e.Apply(ctx, Mutation{
		Name: MutationCreate,
		Request: func(ctx context.Context, token string) error {
			post, err := e.deps.Backend.CreatePost(ctx, token, draft)
			if err != nil {
				return err
			}
			created = post
			return nil
		},
		OnSuccess: func(ctx context.Context) {
			e.invalidatePages()
			e.deps.Posts.InsertOne(created)
			e.deps.Pages.Clear(ctx)
			e.deps.Cache.Invalidate()
		},
		FailureMessage: "failed to create post",
	})
	return created, err
}

// invalidatePages stops a page load that started before the mutation
// committed from landing its now stale posts.
func (e *Engine) invalidatePages() {
	if e.deps.Pager != nil {
		e.deps.Pager.Invalidate()
	}
}

// AddComment posts a comment and bumps the post's comment counter, currently
// comments, ahead of the response. The counter is restored if the request fails.
func (e *Engine) AddComment(ctx context.Context, postID, content string, comments int) (model.Comment, error) {
	var created model.Comment
	err := e.Apply(ctx, Mutation{
		Name:   MutationComment,
		PostID: postID,
		Do: func() {
			e.deps.Posts.Patch(postID, model.CommentsPatch(comments+1))
		},
		Undo: func() {
			e.deps.Posts.Patch(postID, model.CommentsPatch(comments))
		},
		Request: func(ctx context.Context, token string) error {
			c, err := e.deps.Backend.CreateComment(ctx, token, postID, content)
			if err != nil {
				return err
			}
			created = c
			return nil
		},
		FailureMessage: "failed to add comment",
	})
	return created, err
}
