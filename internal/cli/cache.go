package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/pagecache"
	"github.com/roach88/feedsync/internal/store"
)

// CacheView describes the persisted first page.
type CacheView struct {
	Backend string        `json:"backend"`
	Present bool          `json:"present"`
	Fresh   bool          `json:"fresh"`
	Posts   int           `json:"posts"`
	Cursor  string        `json:"cursor,omitempty"`
	Age     time.Duration `json:"age_ns"`
	TTL     time.Duration `json:"ttl_ns"`

	// Set for the sqlite backend only.
	Slots     []string  `json:"slots,omitempty"`
	WrittenAt time.Time `json:"written_at,omitzero"`
}

func (v CacheView) renderText(w io.Writer) {
	if !v.Present {
		fmt.Fprintf(w, "%s cache: empty\n", v.Backend)
		return
	}
	state := "expired"
	if v.Fresh {
		state = "fresh"
	}
	fmt.Fprintf(w, "%s cache: %d posts, age %s of %s (%s)\n", v.Backend, v.Posts, v.Age.Round(time.Second), v.TTL, state)
	if v.Cursor != "" {
		fmt.Fprintf(w, "next page after %s\n", v.Cursor)
	}
	if !v.WrittenAt.IsZero() {
		fmt.Fprintf(w, "written %s\n", v.WrittenAt.Format(time.RFC3339))
	}
}

// slotInfo fills in what the sqlite database holds beside the cache entry.
func (v *CacheView) slotInfo(ctx context.Context, slots *store.Store) error {
	keys, err := slots.Keys(ctx)
	if err != nil {
		return err
	}
	v.Slots = keys
	at, ok, err := slots.UpdatedAt(ctx, pagecache.Key)
	if err != nil {
		return err
	}
	if ok {
		v.WrittenAt = at
	}
	return nil
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the persisted first page",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the persisted first page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			view := CacheView{Backend: s.cfg.CacheBackend, TTL: s.pages.TTL()}
			page, age, ok := s.pages.Inspect(ctx)
			if ok {
				view.Present = true
				view.Fresh = age <= s.pages.TTL()
				view.Posts = len(page.Posts)
				view.Cursor = page.NextPageCursor
				view.Age = age
			}
			if s.slots != nil {
				if err := view.slotInfo(ctx, s.slots); err != nil {
					return WrapExitError(ExitFailure, "failed to read cache database", err)
				}
			}
			return s.out.Success(view)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the persisted first page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			s.pages.Clear(ctx)
			return s.out.Success(fmt.Sprintf("%s cache cleared", s.cfg.CacheBackend))
		},
	})

	return cmd
}
