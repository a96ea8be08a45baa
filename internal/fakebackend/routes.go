package fakebackend

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/roach88/feedsync/internal/auth"
	"github.com/roach88/feedsync/internal/model"
)

const localHandle = "handle"

func uuidV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// RegisterRoutes mounts the feed API on r.
func RegisterRoutes(r fiber.Router, s *Server) {
	identify := s.identify
	required := s.requireViewer

	social := r.Group("/api/social", identify)
	social.Get("/posts", s.track(RouteListPosts), s.listPosts)
	social.Post("/posts", s.track(RouteCreatePost), required, s.createPost)
	social.Get("/posts/:id", s.track(RouteGetPost), s.getPost)
	social.Delete("/posts/:id", s.track(RouteDeletePost), required, s.deletePost)
	social.Post("/posts/:id/like", s.track(RouteToggleLike), required, s.toggleLike)
	social.Get("/posts/:id/comments", s.track(RouteListComments), s.listComments)
	social.Post("/posts/:id/comments", s.track(RouteCreateComment), required, s.createComment)

	r.Get("/api/users/permissions", identify, s.track(RoutePermissions), required, s.permissions)
	r.Get("/api/subscriptions/status", identify, s.track(RouteSubscriptions), required, s.subscriptions)
}

// identify resolves the bearer token, if any, to a viewer handle.
func (s *Server) identify(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return c.Next()
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return fiber.NewError(fiber.StatusUnauthorized, "malformed authorization header")
	}
	handle, err := auth.Verify(s.secret, parts[1], s.now)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}
	c.Locals(localHandle, model.NormalizeHandle(handle))
	return c.Next()
}

func (s *Server) requireViewer(c *fiber.Ctx) error {
	if viewer(c) == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}
	return c.Next()
}

func viewer(c *fiber.Ctx) string {
	h, _ := c.Locals(localHandle).(string)
	return h
}

// track counts the request and serves a queued failure, if any.
func (s *Server) track(route string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s.mu.Lock()
		s.calls[route]++
		var status int
		if queue := s.failures[route]; len(queue) > 0 {
			status = queue[0]
			s.failures[route] = queue[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			s.logger.Debug("serving injected failure", "route", route, "status", status)
			return fiber.NewError(status, "injected failure")
		}
		return c.Next()
	}
}

func (s *Server) listPosts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	if limit <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be positive")
	}
	cursor := c.Query("lastId")
	handle := viewer(c)

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.orderedIDsLocked()
	start := 0
	if cursor != "" {
		start = len(ids)
		for i, id := range ids {
			if id <= cursor {
				start = i
				break
			}
		}
	}
	end := min(start+limit, len(ids))

	posts := make([]model.Post, 0, end-start)
	for _, id := range ids[start:end] {
		posts = append(posts, s.viewLocked(s.posts[id], handle))
	}
	result := fiber.Map{"posts": posts}
	if end < len(ids) {
		result["nextPageCursor"] = ids[end]
	}
	return c.JSON(result)
}

func (s *Server) getPost(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[c.Params("id")]
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "Post not found")
	}
	return c.JSON(s.viewLocked(p, viewer(c)))
}

func (s *Server) createPost(c *fiber.Ctx) error {
	var draft model.PostDraft
	if err := c.BodyParser(&draft); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if strings.TrimSpace(draft.Content) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "content required")
	}
	handle := viewer(c)

	s.mu.Lock()
	perms := s.perms[handle]
	s.mu.Unlock()

	post := model.Post{
		ID: s.newID(),
		Author: model.Author{
			Name:      model.CreatorID(handle),
			Handle:    handle,
			IsPremium: perms.IsPremium,
		},
		Content:       draft.Content,
		Image:         draft.Image,
		IsPremiumPost: draft.IsPremiumPost,
		Timestamp:     "now",
		HasAccess:     true,
		CreatorID:     model.CreatorID(handle),
	}

	s.mu.Lock()
	s.posts[post.ID] = post
	s.mu.Unlock()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Post created successfully",
		"post_id": post.ID,
		"data":    post,
	})
}

func (s *Server) deletePost(c *fiber.Ctx) error {
	id := c.Params("id")
	handle := viewer(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "Post not found")
	}
	if model.CreatorID(p.Author.Handle) != model.CreatorID(handle) {
		return fiber.NewError(fiber.StatusForbidden, "Not authorized to delete this post")
	}
	delete(s.posts, id)
	delete(s.likes, id)
	delete(s.comments, id)
	return c.JSON(fiber.Map{"message": "Post deleted successfully"})
}

func (s *Server) toggleLike(c *fiber.Ctx) error {
	id := c.Params("id")
	handle := viewer(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "Post not found")
	}
	if s.likes[id] == nil {
		s.likes[id] = make(map[string]bool)
	}
	if s.likes[id][handle] {
		delete(s.likes[id], handle)
		if p.Likes > 0 {
			p.Likes--
		}
		s.posts[id] = p
		return c.JSON(fiber.Map{"liked": false, "message": "Post unliked"})
	}
	s.likes[id][handle] = true
	p.Likes++
	s.posts[id] = p
	return c.JSON(fiber.Map{"liked": true, "message": "Post liked"})
}

func (s *Server) listComments(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	comments := s.comments[c.Params("id")]
	if comments == nil {
		comments = []model.Comment{}
	}
	return c.JSON(comments)
}

func (s *Server) createComment(c *fiber.Ctx) error {
	var input struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&input); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	id := c.Params("id")
	handle := viewer(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "Post not found")
	}
	comment := model.Comment{
		ID:     s.newID(),
		PostID: id,
		Author: model.Author{
			Name:   model.CreatorID(handle),
			Handle: handle,
		},
		Content:   input.Content,
		CreatedAt: s.now().UTC(),
	}
	s.comments[id] = append(s.comments[id], comment)
	p.Comments++
	s.posts[id] = p
	return c.Status(fiber.StatusCreated).JSON(comment)
}

func (s *Server) permissions(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.JSON(s.perms[viewer(c)])
}

func (s *Server) subscriptions(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[viewer(c)]
	if subs.Creators == nil {
		subs.Creators = []model.CreatorSubscription{}
	}
	return c.JSON(subs)
}
