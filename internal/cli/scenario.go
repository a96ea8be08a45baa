package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern)
	Trace  bool   // include traces in the output
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string               `json:"name"`
	Pass   bool                 `json:"pass"`
	Errors []string             `json:"errors,omitempty"`
	Trace  []harness.TraceEvent `json:"trace,omitempty"`
}

// ScenarioReport holds the overall result.
type ScenarioReport struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r ScenarioReport) renderText(w io.Writer) {
	if r.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, s := range r.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", mark, s.Name)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		for _, ev := range s.Trace {
			fmt.Fprintf(w, "    %s\n", traceLine(ev))
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
}

func traceLine(ev harness.TraceEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%3d %-8s %s", ev.Seq, ev.Type, ev.Action)
	if ev.PostID != "" {
		fmt.Fprintf(&b, " %s", ev.PostID)
	}
	if ev.Phase != "" {
		fmt.Fprintf(&b, " %s", ev.Phase)
	}
	if ev.Error != "" {
		fmt.Fprintf(&b, " error=%s", ev.Error)
	}
	if ev.Posts != nil {
		fmt.Fprintf(&b, " posts=%d", *ev.Posts)
	}
	return b.String()
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <file-or-dir>...",
		Short: "Run feed scenarios against the built-in fake backend",
		Long: `Run YAML feed scenarios against an in-process fake backend.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  feedctl scenario ./scenarios
  feedctl scenario ./scenarios --filter "like_*" --trace
  feedctl scenario ./scenarios/ten_plus_five.yaml --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print each scenario's trace")

	return cmd
}

func runScenarios(cmd *cobra.Command, opts *ScenarioOptions, paths []string) error {
	var files []string
	for _, p := range paths {
		found, err := findScenarioFiles(p, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		files = append(files, found...)
	}

	report := ScenarioReport{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		res := runScenarioFile(cmd, opts, file)
		if res.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Scenarios = append(report.Scenarios, res)
	}

	if err := newFormatter(cmd, opts.RootOptions).Success(report); err != nil {
		return err
	}
	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", report.Failed, report.Total))
	}
	return nil
}

func runScenarioFile(cmd *cobra.Command, opts *ScenarioOptions, file string) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{Name: filepath.Base(file), Errors: []string{err.Error()}}
	}

	var runOpts []harness.Option
	if opts.Verbose {
		runOpts = append(runOpts, harness.WithLogger(newLogger(cmd.ErrOrStderr(), opts.RootOptions, defaultLogConfig())))
	}
	result, err := harness.Run(cmd.Context(), scenario, runOpts...)
	if err != nil {
		return ScenarioResult{Name: scenario.Name, Errors: []string{fmt.Sprintf("execution failed: %v", err)}}
	}

	out := ScenarioResult{Name: scenario.Name, Pass: result.Pass}
	if len(result.Errors) > 0 {
		out.Errors = result.Errors
	}
	if opts.Trace {
		out.Trace = result.Trace
	}
	return out
}

// findScenarioFiles returns path itself for a file, or the YAML files under
// a directory whose base name matches filter.
func findScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(filepath.Base(p), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	return files, err
}
