package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldstore/plugins/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal string
	Session string
	Path    string // optional - filter to one field path
}

// SessionSummary describes one journaled store in trace output.
type SessionSummary struct {
	ID        string `json:"id"`
	StoreID   string `json:"store_id"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
}

// TimelineEntry is one journal entry in trace output.
type TimelineEntry struct {
	Seq      int64           `json:"seq"`
	Epoch    int64           `json:"epoch"`
	Kind     string          `json:"kind"`
	Mutation string          `json:"mutation,omitempty"`
	Path     string          `json:"path"`
	Payload  json.RawMessage `json:"payload"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string          `json:"session"`
	Timeline []TimelineEntry `json:"timeline"`
	Stats    TraceStats      `json:"stats"`
}

// TraceStats holds summary statistics for a session.
type TraceStats struct {
	TotalEntries int  `json:"total_entries"`
	Commits      int  `json:"commits"`
	Validations  int  `json:"validations"`
	Ended        bool `json:"ended"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect a commit journal",
		Long: `Inspect a commit journal written by run --journal.

Without --session, lists the journaled sessions. With --session, shows
the session's commits and validations in the order they happened.

Examples:
  fieldctl trace --journal ./fields.db
  fieldctl trace --journal ./fields.db --session 0190c5a1-...
  fieldctl trace --journal ./fields.db --session 0190c5a1-... --path user.email --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to trace")
	cmd.Flags().StringVar(&opts.Path, "path", "", "filter to one field path")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Opening creates missing files; a trace of a missing journal is a typo.
	if _, err := os.Stat(opts.Journal); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("journal not found: %s", opts.Journal), nil)
	}
	j, err := journal.Open(opts.Journal, journal.WithLogger(slog.Default()))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal", err)
	}
	defer j.Close()

	if opts.Session == "" {
		sessions, err := j.Sessions(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to list sessions", err)
		}
		summaries := make([]SessionSummary, 0, len(sessions))
		for _, s := range sessions {
			summaries = append(summaries, summarizeSession(s))
		}
		if formatter.JSON() {
			return formatter.Success(summaries)
		}
		writeSessionsText(cmd.OutOrStdout(), summaries)
		return nil
	}

	entries, err := j.Entries(ctx, opts.Session)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to read entries", err)
	}
	sessions, err := j.Sessions(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to list sessions", err)
	}

	result := TraceResult{
		Session:  opts.Session,
		Timeline: buildTimeline(entries, opts.Path),
	}
	for _, s := range sessions {
		if s.ID == opts.Session {
			result.Stats.Ended = !s.EndedAt.IsZero()
		}
	}
	for _, e := range result.Timeline {
		result.Stats.TotalEntries++
		switch journal.Kind(e.Kind) {
		case journal.KindCommit:
			result.Stats.Commits++
		case journal.KindValidate:
			result.Stats.Validations++
		}
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

// buildTimeline converts journal entries to timeline entries, keeping only
// pathFilter's entries when it is set.
func buildTimeline(entries []journal.Entry, pathFilter string) []TimelineEntry {
	timeline := make([]TimelineEntry, 0, len(entries))
	for _, e := range entries {
		if pathFilter != "" && e.Path != pathFilter {
			continue
		}
		timeline = append(timeline, TimelineEntry{
			Seq:      e.Seq,
			Epoch:    e.Epoch,
			Kind:     string(e.Kind),
			Mutation: e.Mutation,
			Path:     e.Path,
			Payload:  e.Payload,
		})
	}
	return timeline
}

func summarizeSession(s journal.Session) SessionSummary {
	summary := SessionSummary{
		ID:        s.ID,
		StoreID:   s.StoreID,
		StartedAt: s.StartedAt.Format(time.RFC3339Nano),
	}
	if !s.EndedAt.IsZero() {
		summary.EndedAt = s.EndedAt.Format(time.RFC3339Nano)
	}
	return summary
}

func writeSessionsText(w io.Writer, sessions []SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}
	fmt.Fprintln(w, "=== Sessions ===")
	for _, s := range sessions {
		status := "open"
		if s.EndedAt != "" {
			status = "ended " + s.EndedAt
		}
		fmt.Fprintf(w, "  %s store=%s started %s (%s)\n", s.ID, truncateID(s.StoreID), s.StartedAt, status)
	}
}

// writeTraceText outputs the trace result as text.
func writeTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Session: %s\n", result.Session)
	fmt.Fprintf(w, "Status: %s\n", endedStatus(result.Stats.Ended))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no entries)")
	}
	for _, e := range result.Timeline {
		switch journal.Kind(e.Kind) {
		case journal.KindCommit:
			fmt.Fprintf(w, "  [%d] COMMIT %s %s\n", e.Seq, e.Mutation, e.Path)
		default:
			fmt.Fprintf(w, "  [%d] VALIDATE %s\n", e.Seq, e.Path)
		}
		if verbose {
			fmt.Fprintf(w, "       Epoch: %d\n", e.Epoch)
			fmt.Fprintf(w, "       Payload: %s\n", string(e.Payload))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Entries: %d\n", result.Stats.TotalEntries)
	fmt.Fprintf(w, "  Commits:       %d\n", result.Stats.Commits)
	fmt.Fprintf(w, "  Validations:   %d\n", result.Stats.Validations)
}

// endedStatus returns a human-readable session status.
func endedStatus(ended bool) string {
	if ended {
		return "Ended"
	}
	return "Open (store not destroyed)"
}
