package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/morgisync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Session string
	Kind    string // optional - filter to specific event kind
}

// TraceEvent represents a single journaled event in the timeline.
type TraceEvent struct {
	Seq     int64           `json:"seq"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string         `json:"session"`
	Timeline []TraceEvent   `json:"timeline"`
	Kinds    map[string]int `json:"kinds"`
	Total    int            `json:"total"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journaled events of a session",
		Long: `Show the events a session applied to the mirror, in order, with a
count per event kind. Without --session the most recent session is shown.

Examples:
  morgisync trace
  morgisync trace --session 0190a6c2-... --kind ImageTrashed
  morgisync trace --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", "session to trace (default: latest)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to specific event kind")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmdContext(cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	path := cfg.JournalPath()
	if path == "" {
		return NewExitError(ExitCommandError, "no journal configured")
	}

	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	session, err := resolveSession(ctx, st, opts.Session)
	if errors.Is(err, sql.ErrNoRows) {
		if opts.Format == "json" {
			return outputTraceJSON(cmd, TraceResult{Timeline: []TraceEvent{}, Kinds: map[string]int{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found in journal.")
		return nil
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find session", err)
	}

	records, err := st.ReadEvents(ctx, session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := buildTrace(session, records, opts.Kind)

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

func resolveSession(ctx context.Context, st *store.Store, session string) (string, error) {
	if session != "" {
		return session, nil
	}
	return st.LatestSession(ctx)
}

// buildTrace builds the timeline of records, keeping only kind when set.
// Kind counts cover the whole session.
func buildTrace(session string, records []store.Record, kind string) TraceResult {
	result := TraceResult{
		Session:  session,
		Timeline: make([]TraceEvent, 0, len(records)),
		Kinds:    make(map[string]int),
		Total:    len(records),
	}
	for _, rec := range records {
		result.Kinds[rec.Kind]++
		if kind != "" && rec.Kind != kind {
			continue
		}
		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:     rec.Seq,
			Kind:    rec.Kind,
			Payload: json.RawMessage(rec.Payload),
		})
	}
	return result
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{
		Status: "ok",
		Data:   result,
	})
}

// outputTraceText outputs the trace result as text. Payloads are shown with
// --verbose.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Session: %s\n", result.Session)
	fmt.Fprintln(w)

	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No events found.")
	}
	for _, ev := range result.Timeline {
		fmt.Fprintf(w, "[%d] %s\n", ev.Seq, ev.Kind)
		if verbose && len(ev.Payload) > 0 {
			fmt.Fprintf(w, "    %s\n", ev.Payload)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Events: %d\n", result.Total)
	kinds := make([]string, 0, len(result.Kinds))
	for k := range result.Kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %s: %d\n", k, result.Kinds[k])
	}
	return nil
}
