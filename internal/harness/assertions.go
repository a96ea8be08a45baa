package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/feedsync/internal/fakebackend"
	"github.com/roach88/feedsync/internal/feed"
	"github.com/roach88/feedsync/internal/pagecache"
)

// AssertionContext is the final state assertions look at.
type AssertionContext struct {
	Ctx     context.Context
	Client  *feed.Client
	Backend *fakebackend.Server
	Pages   *pagecache.Cache
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nSteps:\n")
	for _, ev := range e.Trace {
		if ev.Type != EventStep {
			continue
		}
		fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Action)
		if ev.PostID != "" {
			fmt.Fprintf(&buf, " %s", ev.PostID)
		}
		if ev.Error != "" {
			fmt.Fprintf(&buf, " error=%s", ev.Error)
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: result.Trace}
	}
	c := actx.Client

	switch a.Type {
	case AssertPostCount:
		if got := len(c.Posts()); got != *a.Count {
			return fail(fmt.Sprintf("%d posts", *a.Count), fmt.Sprintf("%d posts", got))
		}

	case AssertFeedHead:
		ids := make([]string, 0, len(a.IDs))
		for _, p := range c.Posts() {
			if len(ids) == len(a.IDs) {
				break
			}
			ids = append(ids, p.ID)
		}
		if !slices.Equal(ids, a.IDs) {
			return fail(fmt.Sprintf("feed starting %v", a.IDs), fmt.Sprintf("%v", ids))
		}

	case AssertPostState:
		post, ok := c.Store().Cached(a.Post)
		if !ok {
			return fail("post "+a.Post+" loaded", "not found")
		}
		if a.Likes != nil && post.Likes != *a.Likes {
			return fail(fmt.Sprintf("%s likes=%d", a.Post, *a.Likes), fmt.Sprintf("likes=%d", post.Likes))
		}
		if a.Liked != nil && post.Liked != *a.Liked {
			return fail(fmt.Sprintf("%s liked=%t", a.Post, *a.Liked), fmt.Sprintf("liked=%t", post.Liked))
		}
		if a.Comments != nil && post.Comments != *a.Comments {
			return fail(fmt.Sprintf("%s comments=%d", a.Post, *a.Comments), fmt.Sprintf("comments=%d", post.Comments))
		}

	case AssertAbsent:
		if _, ok := c.Store().Get(a.Post); ok {
			return fail(a.Post+" absent from feed", "present")
		}

	case AssertHasMore:
		if got := c.HasMore(); got != *a.Value {
			return fail(fmt.Sprintf("has_more=%t", *a.Value), fmt.Sprintf("has_more=%t", got))
		}

	case AssertCanView:
		post, ok := c.Store().Cached(a.Post)
		if !ok {
			return fail("post "+a.Post+" loaded", "not found")
		}
		if got := c.CanView(post); got != *a.Value {
			return fail(fmt.Sprintf("can_view(%s)=%t", a.Post, *a.Value), fmt.Sprintf("%t", got))
		}

	case AssertPageCached:
		_, got := actx.Pages.Read(actx.Ctx)
		if got != *a.Value {
			return fail(fmt.Sprintf("first page cached=%t", *a.Value), fmt.Sprintf("%t", got))
		}

	case AssertBackendCalls:
		if got := actx.Backend.Calls(a.Route); got != *a.Count {
			return fail(fmt.Sprintf("%d %s calls", *a.Count, a.Route), fmt.Sprintf("%d", got))
		}

	case AssertMutationPhases:
		got := result.Phases(a.Mutation, a.Post)
		if !slices.Equal(got, a.Phases) {
			return fail(fmt.Sprintf("%s phases %v", a.Mutation, a.Phases), fmt.Sprintf("%v", got))
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
