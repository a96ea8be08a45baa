package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ShowView is the show command's payload.
type ShowView struct {
	Post     PostView      `json:"post"`
	Access   string        `json:"access"`
	Comments []CommentView `json:"comments"`
}

// CommentView is one comment as printed by the CLI.
type CommentView struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

func (v ShowView) renderText(w io.Writer) {
	fmt.Fprintln(w, v.Post.line())
	fmt.Fprintf(w, "  access: %s\n", v.Access)
	if v.Post.Locked {
		fmt.Fprintln(w, "  (subscribe to see this post)")
	} else if v.Post.Content != "" {
		fmt.Fprintf(w, "  %s\n", v.Post.Content)
	}
	for _, c := range v.Comments {
		fmt.Fprintf(w, "  > %s: %s\n", c.Author, c.Content)
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "show <post-id>",
		Short: "Show one post with its comments",
		Long: `Show one post with its comments.

Premium content is hidden unless the viewer is premium, wrote the post
or subscribes to its creator. --comment adds a comment first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			if err := s.client.RefreshViewer(ctx, false); err != nil {
				s.logger.Warn("viewer snapshots unavailable", "error", err)
			}
			if _, err := s.client.OpenPost(ctx, args[0]); err != nil {
				return wrapPostErr("open", args[0], err)
			}
			if comment != "" {
				if _, err := s.client.AddComment(ctx, args[0], comment); err != nil {
					return wrapPostErr("comment on", args[0], err)
				}
			}
			comments, err := s.client.Comments(ctx, args[0])
			if err != nil {
				return wrapPostErr("load comments for", args[0], err)
			}

			post, _ := s.client.Focused()
			view := ShowView{
				Post:     newPostView(s.client, post),
				Access:   s.client.AccessReason(post),
				Comments: make([]CommentView, 0, len(comments)),
			}
			for _, c := range comments {
				view.Comments = append(view.Comments, CommentView{Author: c.Author.Handle, Content: c.Content})
			}
			return s.out.Success(view)
		},
	}

	cmd.Flags().StringVar(&comment, "comment", "", "add a comment before showing")
	return cmd
}
