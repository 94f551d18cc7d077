package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldstore/internal/harness"
	"github.com/roach88/fieldstore/plugins/journal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Journal string
}

// RunReport is the JSON payload of the run command.
type RunReport struct {
	Scenario string                           `json:"scenario"`
	Pass     bool                             `json:"pass"`
	Errors   []string                         `json:"errors,omitempty"`
	Trace    []harness.TraceEvent             `json:"trace"`
	State    map[string]harness.FieldSnapshot `json:"state"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario and print its trace",
		Long: `Run a scenario against a fresh field store and print every store
event and the final field state.

Expectation failures are listed but do not change the exit code; use
check for that. With --journal every commit and validation is also
recorded in a SQLite commit journal.

Example:
  fieldctl run ./scenarios/signup.yaml
  fieldctl run ./scenarios/signup.yaml --journal ./fields.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioCommand(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record commits to this SQLite journal")

	return cmd
}

func runScenarioCommand(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if _, err := os.Stat(path); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenario not found: %s", path), nil)
	}
	sc, err := harness.LoadScenario(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "failed to load scenario", err)
	}

	runOpts := []harness.Option{harness.WithLogger(slog.Default())}
	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal, journal.WithLogger(slog.Default()))
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
		runOpts = append(runOpts, harness.WithPlugins(j.Plugin()))
		formatter.VerboseLog("Recording to journal %s", opts.Journal)
	}

	formatter.VerboseLog("Running scenario %s (%d steps)", sc.Name, len(sc.Steps))
	result, err := harness.Run(sc, runOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeRunFailed, "scenario failed to run", err)
	}

	if formatter.JSON() {
		return formatter.Success(RunReport{
			Scenario: sc.Name,
			Pass:     result.Pass,
			Errors:   result.Errors,
			Trace:    result.Trace,
			State:    result.State,
		})
	}
	writeRunText(cmd.OutOrStdout(), sc.Name, result)
	return nil
}

// writeRunText renders a result for humans.
func writeRunText(w io.Writer, name string, result *harness.Result) {
	fmt.Fprintf(w, "Scenario: %s\n\n", name)

	fmt.Fprintln(w, "=== Trace ===")
	if len(result.Trace) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Trace {
		fmt.Fprintf(w, "  [%d] step %d %s\n", ev.Seq, ev.Step, describeEvent(ev))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== State ===")
	if len(result.State) == 0 {
		fmt.Fprintln(w, "  (no fields)")
	}
	paths := make([]string, 0, len(result.State))
	for p := range result.State {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		f := result.State[p]
		fmt.Fprintf(w, "  %s (%s) = %s touched=%t dirty=%t", p, f.Mode, formatValue(f.Value), f.Touched, f.Dirty)
		if f.Error != "" {
			fmt.Fprintf(w, " error=%q", f.Error)
		}
		fmt.Fprintln(w)
	}

	if !result.Pass {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Failed Expectations ===")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}

// describeEvent renders one trace event on a single line.
func describeEvent(ev harness.TraceEvent) string {
	switch ev.Type {
	case harness.EventCommit:
		if ev.Value != nil {
			return fmt.Sprintf("COMMIT %s %s %s", ev.Name, ev.Path, formatValue(ev.Value))
		}
		return fmt.Sprintf("COMMIT %s %s", ev.Name, ev.Path)
	case harness.EventValidate:
		return fmt.Sprintf("VALIDATE %s %s", ev.Path, outcome(ev.OK, ev.Message))
	case harness.EventResult:
		if ev.Path == "" {
			return fmt.Sprintf("RESULT %s %s", ev.Name, outcome(ev.OK, ev.Message))
		}
		return fmt.Sprintf("RESULT %s %s %s", ev.Name, ev.Path, outcome(ev.OK, ev.Message))
	case harness.EventNotify:
		return fmt.Sprintf("NOTIFY %s %s", ev.Name, formatValue(ev.Value))
	case harness.EventWatch:
		return fmt.Sprintf("WATCH %s %s %s", ev.Name, ev.Path, formatValue(ev.Value))
	case harness.EventFlush:
		return fmt.Sprintf("FLUSH %v", ev.Value)
	default:
		return ev.Type
	}
}

func outcome(ok *bool, message string) string {
	if ok != nil && *ok {
		return "ok"
	}
	return fmt.Sprintf("failed %q", message)
}
