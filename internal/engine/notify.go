package engine

import (
	"context"
	"log/slog"
)

// Notice is a transient message for the viewer, such as a toast.
type Notice struct {
	MutationID string
	Mutation   string
	PostID     string
	Message    string
	Err        error
}

// Notifier surfaces mutation failures to the viewer.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notice) {
	f(ctx, n)
}

// NopNotifier drops every notice.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Notice) {}

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(ctx context.Context, n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, n.Message, "mutation", n.Mutation, "post_id", n.PostID, "error", n.Err)
}
