// Package harness runs scripted feed scenarios against an in-process fake
// backend and records what happened.
//
// A scenario is a YAML file naming a seed (how many posts the backend starts
// with, who the viewer is), a list of steps (load, scroll, like, delete,
// inject a failure, advance the clock) and assertions on the final state.
// Each step and every mutation phase the engine emits is appended to a trace.
// Traces are deterministic: the clock is manual, mutation IDs come from a
// fixed generator and backend IDs are sequential. RunWithGolden compares the
// trace against testdata/golden/<name>.golden.
//
// Example scenario:
//
//	name: like_rollback
//	description: a failed like restores the previous count
//	viewer: "@reader"
//	posts: 5
//	steps:
//	  - do: start
//	  - do: fail_next
//	    route: toggle_like
//	    status: 500
//	  - do: like
//	    post: p-004
//	    expect_error: REQUEST_FAILED
//	assertions:
//	  - type: post_state
//	    post: p-004
//	    likes: 0
//	    liked: false
package harness
