package model

// PostPatch is a shallow partial update. Nil fields are left untouched.
type PostPatch struct {
	Liked     *bool
	Likes     *int
	Comments  *int
	Shares    *int
	Content   *string
	Image     *string
	HasAccess *bool
}

// Apply returns a copy of post with the patch's non-nil fields merged in.
func (p PostPatch) Apply(post Post) Post {
	if p.Liked != nil {
		post.Liked = *p.Liked
	}
	if p.Likes != nil {
		post.Likes = *p.Likes
	}
	if p.Comments != nil {
		post.Comments = *p.Comments
	}
	if p.Shares != nil {
		post.Shares = *p.Shares
	}
	if p.Content != nil {
		post.Content = *p.Content
	}
	if p.Image != nil {
		post.Image = *p.Image
	}
	if p.HasAccess != nil {
		post.HasAccess = *p.HasAccess
	}
	return post
}

// Empty reports whether the patch changes nothing.
func (p PostPatch) Empty() bool {
	return p.Liked == nil && p.Likes == nil && p.Comments == nil && p.Shares == nil &&
		p.Content == nil && p.Image == nil && p.HasAccess == nil
}

// LikePatch builds the patch for a like state pair.
func LikePatch(liked bool, likes int) PostPatch {
	return PostPatch{Liked: &liked, Likes: &likes}
}

// CommentsPatch builds the patch for a comment counter.
func CommentsPatch(comments int) PostPatch {
	return PostPatch{Comments: &comments}
}
