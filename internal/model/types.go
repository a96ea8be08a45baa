package model

import "time"

// Author describes who wrote a post.
type Author struct {
	Name      string `json:"name"`
	Handle    string `json:"handle"`
	Avatar    string `json:"avatar"`
	IsPremium bool   `json:"isPremium"`
}

// Post is a single feed entry.
//
// HasAccess is the server's access decision at fetch time. It is a hint only;
// access.CanView may override it without a new fetch.
type Post struct {
	ID                       string `json:"id"`
	Author                   Author `json:"author"`
	Content                  string `json:"content"`
	Image                    string `json:"image,omitempty"`
	Likes                    int    `json:"likes"`
	Comments                 int    `json:"comments"`
	Shares                   int    `json:"shares"`
	IsPremiumPost            bool   `json:"isPremiumPost"`
	Timestamp                string `json:"timestamp"`
	Liked                    bool   `json:"liked"`
	RequiredSubscriptionTier string `json:"requiredSubscriptionTier,omitempty"`
	MinimumTierRequired      string `json:"minimumTierRequired,omitempty"`
	HasAccess                bool   `json:"hasAccess"`
	CreatorID                string `json:"creatorId,omitempty"`
}

// Premium reports whether the post is gated, either on its own or because its
// author publishes premium content.
func (p Post) Premium() bool {
	return p.IsPremiumPost || p.Author.IsPremium
}

// Page is one batch of posts. An empty NextPageCursor marks the end of the stream.
type Page struct {
	Posts          []Post `json:"posts"`
	NextPageCursor string `json:"nextPageCursor,omitempty"`
}

// HasNext reports whether the server issued a cursor for a following page.
func (p Page) HasNext() bool {
	return p.NextPageCursor != ""
}

// Clone returns a deep copy of the page so callers can't alias cached slices.
func (p Page) Clone() Page {
	out := Page{NextPageCursor: p.NextPageCursor}
	if p.Posts != nil {
		out.Posts = make([]Post, len(p.Posts))
		copy(out.Posts, p.Posts)
	}
	return out
}

// Comment is a reply attached to a post.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostDraft is the payload for creating a post.
type PostDraft struct {
	Content       string `json:"content"`
	Image         string `json:"image,omitempty"`
	IsPremiumPost bool   `json:"isPremiumPost"`
}

// Viewer is the signed-in user looking at the feed.
type Viewer struct {
	Handle string `json:"handle"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// SignedIn reports whether the viewer has an identity.
func (v Viewer) SignedIn() bool {
	return v.Handle != ""
}

// Permissions is the viewer's platform permission snapshot.
type Permissions struct {
	IsPremium        bool   `json:"isPremium"`
	IsCreator        bool   `json:"isCreator"`
	SubscriptionTier string `json:"subscriptionTier,omitempty"`
}

// SubscriptionActive is the only status that grants access.
const SubscriptionActive = "active"

// PlatformSubscription is the viewer's platform-wide subscription record.
type PlatformSubscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	TierID string `json:"tierID"`
}

// CreatorSubscription is one creator-specific subscription record.
type CreatorSubscription struct {
	ID        string `json:"id"`
	CreatorID string `json:"creatorId"`
	Status    string `json:"status"`
	TierID    string `json:"tierID"`
}

// Active reports whether this subscription grants access.
func (s CreatorSubscription) Active() bool {
	return s.Status == SubscriptionActive
}

// Subscriptions is the viewer's subscription snapshot.
type Subscriptions struct {
	Platform *PlatformSubscription `json:"platformSubscription"`
	Creators []CreatorSubscription `json:"creatorSubscriptions"`
}
