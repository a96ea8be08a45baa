package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/model"
)

// NewLikeCommand creates the like command.
func NewLikeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "like <post-id>",
		Short: "Like or unlike a post",
		Long: `Toggle the signed-in viewer's like on a post.

The count changes at once and is restored if the server refuses.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			if err := s.start(ctx); err != nil {
				return err
			}
			if _, err := s.client.OpenPost(ctx, args[0]); err != nil {
				return wrapPostErr("open", args[0], err)
			}
			if err := s.client.ToggleLike(ctx, args[0]); err != nil {
				return wrapPostErr("like", args[0], err)
			}
			post, _ := s.client.Store().Cached(args[0])
			return s.out.Success(newPostView(s.client, post))
		},
	}
}

// DeleteResult is the delete command's payload.
type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func (r DeleteResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "deleted %s\n", r.ID)
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <post-id>",
		Short: "Delete one of your posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			if err := s.start(ctx); err != nil {
				return err
			}
			if _, err := s.client.OpenPost(ctx, args[0]); err != nil {
				return wrapPostErr("open", args[0], err)
			}
			if err := s.client.DeletePost(ctx, args[0]); err != nil {
				return wrapPostErr("delete", args[0], err)
			}
			return s.out.Success(DeleteResult{ID: args[0], Deleted: true})
		},
	}
}

// PostOptions holds flags for the post command.
type PostOptions struct {
	*RootOptions
	Image   string
	Premium bool
}

// NewPostCommand creates the post command.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "post <text>...",
		Short: "Publish a post",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(cmd, opts.RootOptions)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			draft := model.PostDraft{
				Content:       strings.Join(args, " "),
				Image:         opts.Image,
				IsPremiumPost: opts.Premium,
			}
			post, err := s.client.CreatePost(ctx, draft)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to publish", err)
			}
			return s.out.Success(newPostView(s.client, post))
		},
	}

	cmd.Flags().StringVar(&opts.Image, "image", "", "image URL")
	cmd.Flags().BoolVar(&opts.Premium, "premium", false, "subscribers only")

	return cmd
}
