package api

import (
	"context"
	"net/http"

	"github.com/roach88/feedsync/internal/model"
)

// Permissions fetches the viewer's platform permissions.
func (c *Client) Permissions(ctx context.Context, token string) (model.Permissions, error) {
	var out model.Permissions
	err := c.do(ctx, call{
		op:     "get permissions",
		method: http.MethodGet,
		path:   "/api/users/permissions",
		token:  token,
		out:    &out,
	})
	return out, err
}

// Subscriptions fetches the viewer's platform and creator subscriptions.
func (c *Client) Subscriptions(ctx context.Context, token string) (model.Subscriptions, error) {
	var out model.Subscriptions
	err := c.do(ctx, call{
		op:     "get subscriptions",
		method: http.MethodGet,
		path:   "/api/subscriptions/status",
		token:  token,
		out:    &out,
	})
	return out, err
}
