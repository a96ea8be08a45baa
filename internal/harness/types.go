package harness

// Trace event types.
const (
	EventStep     = "step"
	EventMutation = "mutation"
)

// TraceEvent is one entry in a scenario trace.
//
// Step events carry the feed size and HasMore after the step ran. Mutation
// events carry the engine phase.
type TraceEvent struct {
	Seq        int    `json:"seq"`
	Type       string `json:"type"`
	Action     string `json:"action"`
	PostID     string `json:"post_id,omitempty"`
	MutationID string `json:"mutation_id,omitempty"`
	Phase      string `json:"phase,omitempty"`
	Error      string `json:"error,omitempty"`
	Posts      *int   `json:"posts,omitempty"`
	HasMore    *bool  `json:"has_more,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step behaved as expected and every assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Phases returns the phases recorded for mutation, optionally narrowed to
// one post, in trace order.
func (r *Result) Phases(mutation, postID string) []string {
	var phases []string
	for _, ev := range r.Trace {
		if ev.Type != EventMutation || ev.Action != mutation {
			continue
		}
		if postID != "" && ev.PostID != postID {
			continue
		}
		phases = append(phases, ev.Phase)
	}
	return phases
}
