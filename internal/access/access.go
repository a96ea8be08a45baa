// Package access decides whether a viewer may see a post's content.
//
// CanView is pure: it depends only on its arguments, so a change to the
// viewer's permissions or subscriptions is reflected without refetching posts.
package access

import "github.com/roach88/feedsync/internal/model"

// CanView evaluates the access chain in order and returns at the first rule
// that grants access:
//
//	platform premium viewer
//	neither the post nor its author is premium
//	viewer authored the post
//	viewer holds an active subscription to the post's creator
//
// Otherwise the server's HasAccess hint decides.
func CanView(post model.Post, viewer model.Viewer, perms model.Permissions, subs model.Subscriptions) bool {
	if perms.IsPremium {
		return true
	}
	if !post.Premium() {
		return true
	}
	if model.SameHandle(viewer.Handle, post.Author.Handle) {
		return true
	}
	if subscribedTo(subs, model.CreatorID(post.Author.Handle)) {
		return true
	}
	return post.HasAccess
}

func subscribedTo(subs model.Subscriptions, creatorID string) bool {
	if creatorID == "" {
		return false
	}
	for _, s := range subs.Creators {
		if s.Active() && model.CreatorID(s.CreatorID) == creatorID {
			return true
		}
	}
	return false
}

// Reason names the rule that decided a CanView call. Used for diagnostics.
func Reason(post model.Post, viewer model.Viewer, perms model.Permissions, subs model.Subscriptions) string {
	switch {
	case perms.IsPremium:
		return "platform_premium"
	case !post.Premium():
		return "public_post"
	case model.SameHandle(viewer.Handle, post.Author.Handle):
		return "author"
	case subscribedTo(subs, model.CreatorID(post.Author.Handle)):
		return "creator_subscription"
	case post.HasAccess:
		return "server_hint"
	default:
		return "denied"
	}
}
