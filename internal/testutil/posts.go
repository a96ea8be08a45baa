package testutil

import (
	"fmt"

	"github.com/roach88/feedsync/internal/model"
)

// Post builds a plain, public post authored by handle.
func Post(id, handle string) model.Post {
	return model.Post{
		ID: id,
		Author: model.Author{
			Name:   handle,
			Handle: handle,
		},
		Content:   "post " + id,
		Timestamp: "1h",
		HasAccess: true,
	}
}

// PremiumPost builds a premium post the server marked as inaccessible.
func PremiumPost(id, handle string) model.Post {
	p := Post(id, handle)
	p.IsPremiumPost = true
	p.HasAccess = false
	return p
}

// Posts builds n posts with IDs prefix-001, prefix-002, ...
func Posts(prefix string, n int) []model.Post {
	out := make([]model.Post, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Post(fmt.Sprintf("%s-%03d", prefix, i), "@author"))
	}
	return out
}

// IDs extracts post IDs in order.
func IDs(posts []model.Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}
