package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/model"
)

// PostView is one post as printed by the CLI.
type PostView struct {
	ID       string `json:"id"`
	Author   string `json:"author"`
	Content  string `json:"content,omitempty"`
	Likes    int    `json:"likes"`
	Liked    bool   `json:"liked"`
	Comments int    `json:"comments"`
	Premium  bool   `json:"premium"`
	Locked   bool   `json:"locked"`
}

func newPostView(c *feed.Client, p model.Post) PostView {
	v := PostView{
		ID:       p.ID,
		Author:   p.Author.Handle,
		Likes:    p.Likes,
		Liked:    p.Liked,
		Comments: p.Comments,
		Premium:  p.Premium(),
		Locked:   !c.CanView(p),
	}
	if !v.Locked {
		v.Content = p.Content
	}
	return v
}

func (v PostView) line() string {
	var flags []string
	if v.Liked {
		flags = append(flags, "liked")
	}
	if v.Premium {
		flags = append(flags, "premium")
	}
	if v.Locked {
		flags = append(flags, "locked")
	}
	line := fmt.Sprintf("%-12s %-16s %4d likes %3d comments", v.ID, v.Author, v.Likes, v.Comments)
	if len(flags) > 0 {
		line += "  [" + strings.Join(flags, ",") + "]"
	}
	return line
}

func (v PostView) renderText(w io.Writer) {
	fmt.Fprintln(w, v.line())
}

// FeedView is the feed command's payload.
type FeedView struct {
	Posts   []PostView `json:"posts"`
	Pages   int        `json:"pages"`
	HasMore bool       `json:"has_more"`
}

func (v FeedView) renderText(w io.Writer) {
	for _, p := range v.Posts {
		fmt.Fprintln(w, p.line())
	}
	more := "end of feed"
	if v.HasMore {
		more = "more available"
	}
	fmt.Fprintf(w, "%d posts, %d pages, %s\n", len(v.Posts), v.Pages, more)
}

func newFeedView(c *feed.Client) FeedView {
	posts := c.Posts()
	views := make([]PostView, 0, len(posts))
	for _, p := range posts {
		views = append(views, newPostView(c, p))
	}
	return FeedView{Posts: views, Pages: c.PageCount(), HasMore: c.HasMore()}
}

// FeedOptions holds flags for the feed command.
type FeedOptions struct {
	*RootOptions
	Pages   int
	Refresh bool
}

// NewFeedCommand creates the feed command.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "List the feed",
		Long: `List posts newest first.

The first page comes from the local cache when it is younger than the
cache TTL. --pages loads further pages; --refresh skips the cache.

Examples:
  feedctl feed
  feedctl feed --pages 3 --format json
  feedctl feed --refresh`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Pages, "pages", 1, "number of pages to load")
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "bypass the cached first page")

	return cmd
}

func runFeed(cmd *cobra.Command, opts *FeedOptions) error {
	if opts.Pages < 1 {
		return NewExitError(ExitCommandError, "--pages must be at least 1")
	}
	ctx := cmd.Context()
	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	if opts.Refresh {
		if err := s.client.RefreshViewer(ctx, false); err != nil {
			s.logger.Warn("viewer snapshots unavailable", "error", err)
		}
		if err := s.client.Refresh(ctx); err != nil {
			return WrapExitError(ExitFailure, "failed to load feed", err)
		}
	} else if err := s.start(ctx); err != nil {
		return err
	}

	for s.client.PageCount() < opts.Pages && s.client.HasMore() {
		loaded, err := s.client.FetchNextPage(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to load next page", err)
		}
		if !loaded {
			break
		}
		s.out.VerboseLog("loaded page %d", s.client.PageCount())
	}

	return s.out.Success(newFeedView(s.client))
}
