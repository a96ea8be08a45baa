package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run of the feed client.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Viewer is the signed-in handle. Empty runs the scenario signed out.
	Viewer string `yaml:"viewer,omitempty"`

	// Posts is how many posts the backend is seeded with: p-001 .. p-NNN,
	// all authored by Author.
	Posts int `yaml:"posts"`

	// Author of the seeded posts. Defaults to "@author".
	Author string `yaml:"author,omitempty"`

	// Premium lists seeded post IDs marked premium and locked.
	Premium []string `yaml:"premium,omitempty"`

	// PageSize defaults to the paginator's default.
	PageSize int `yaml:"page_size,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step actions.
const (
	StepStart         = "start"
	StepFetchNext     = "fetch_next"
	StepRefresh       = "refresh"
	StepScroll        = "scroll"
	StepLike          = "like"
	StepDelete        = "delete"
	StepCreate        = "create"
	StepComment       = "comment"
	StepOpen          = "open"
	StepSignOut       = "sign_out"
	StepFailNext      = "fail_next"
	StepAdvance       = "advance"
	StepGrantPremium  = "grant_premium"
	StepRefreshViewer = "refresh_viewer"
)

// Step is one scripted action.
type Step struct {
	Do      string `yaml:"do"`
	Post    string `yaml:"post,omitempty"`
	Content string `yaml:"content,omitempty"`

	// Route and Status configure fail_next. Status defaults to 500.
	Route  string `yaml:"route,omitempty"`
	Status int    `yaml:"status,omitempty"`

	// By is the advance duration, e.g. "121s".
	By string `yaml:"by,omitempty"`

	// ExpectError is the error code the step must fail with. Empty means
	// the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion checks the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Post     string   `yaml:"post,omitempty"`
	IDs      []string `yaml:"ids,omitempty"`
	Count    *int     `yaml:"count,omitempty"`
	Likes    *int     `yaml:"likes,omitempty"`
	Liked    *bool    `yaml:"liked,omitempty"`
	Comments *int     `yaml:"comments,omitempty"`
	Value    *bool    `yaml:"value,omitempty"`
	Route    string   `yaml:"route,omitempty"`
	Mutation string   `yaml:"mutation,omitempty"`
	Phases   []string `yaml:"phases,omitempty"`
}

// Assertion types.
const (
	AssertPostCount      = "post_count"
	AssertFeedHead       = "feed_head"
	AssertPostState      = "post_state"
	AssertAbsent         = "absent"
	AssertHasMore        = "has_more"
	AssertCanView        = "can_view"
	AssertPageCached     = "page_cached"
	AssertBackendCalls   = "backend_calls"
	AssertMutationPhases = "mutation_phases"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Posts < 0 {
		return fmt.Errorf("posts must be non-negative")
	}
	if s.PageSize < 0 {
		return fmt.Errorf("page_size must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Do {
	case StepStart, StepFetchNext, StepRefresh, StepScroll, StepSignOut,
		StepGrantPremium, StepRefreshViewer:
	case StepLike, StepDelete, StepOpen:
		if step.Post == "" {
			return fmt.Errorf("post is required for %s", step.Do)
		}
	case StepComment:
		if step.Post == "" || step.Content == "" {
			return fmt.Errorf("post and content are required for comment")
		}
	case StepCreate:
		if step.Content == "" {
			return fmt.Errorf("content is required for create")
		}
	case StepFailNext:
		if step.Route == "" {
			return fmt.Errorf("route is required for fail_next")
		}
	case StepAdvance:
		d, err := time.ParseDuration(step.By)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("advance must move the clock forward")
		}
	case "":
		return fmt.Errorf("do is required")
	default:
		return fmt.Errorf("unknown step %q", step.Do)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertPostCount:
		if a.Count == nil {
			return fmt.Errorf("count is required for post_count")
		}
	case AssertFeedHead:
		if len(a.IDs) == 0 {
			return fmt.Errorf("ids is required for feed_head")
		}
	case AssertPostState:
		if a.Post == "" {
			return fmt.Errorf("post is required for post_state")
		}
		if a.Likes == nil && a.Liked == nil && a.Comments == nil {
			return fmt.Errorf("post_state needs at least one of likes, liked, comments")
		}
	case AssertAbsent:
		if a.Post == "" {
			return fmt.Errorf("post is required for absent")
		}
	case AssertHasMore, AssertPageCached:
		if a.Value == nil {
			return fmt.Errorf("value is required for %s", a.Type)
		}
	case AssertCanView:
		if a.Post == "" || a.Value == nil {
			return fmt.Errorf("post and value are required for can_view")
		}
	case AssertBackendCalls:
		if a.Route == "" || a.Count == nil {
			return fmt.Errorf("route and count are required for backend_calls")
		}
	case AssertMutationPhases:
		if a.Mutation == "" || len(a.Phases) == 0 {
			return fmt.Errorf("mutation and phases are required for mutation_phases")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
