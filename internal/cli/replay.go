package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/morgisync/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Session string // optional - specific session only
}

// ReplaySessionResult holds the replay result for a single session.
type ReplaySessionResult struct {
	Session       string `json:"session"`
	Events        int    `json:"events"`
	Images        int    `json:"images"`
	Categories    int    `json:"categories"`
	Deterministic bool   `json:"deterministic"`
	Error         string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions         []ReplaySessionResult `json:"sessions"`
	TotalSessions    int                   `json:"total_sessions"`
	AllDeterministic bool                  `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the journal and verify the mirror is rebuilt identically",
		Long: `Rebuild the mirror of each journaled session from its events, once with
every event applied a single time and once with every event applied twice,
and verify both mirrors are identical.

Exit codes:
  0 - All sessions replay identically
  1 - A doubled replay diverged
  2 - Command error (journal not found, etc.)

Examples:
  morgisync replay --journal ./journal.db
  morgisync replay --journal ./journal.db --session 0190a6c2-...
  morgisync replay --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", "replay specific session only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmdContext(cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	path := cfg.JournalPath()
	if path == "" {
		return NewExitError(ExitCommandError, "no journal configured")
	}
	logger := newLogger(cmd, opts.RootOptions, cfg)

	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	// Get sessions to process
	var sessions []string
	if opts.Session != "" {
		sessions = []string{opts.Session}
	} else {
		sessions, err = st.Sessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
	}

	if len(sessions) == 0 {
		if opts.Format == "json" {
			return outputReplayJSON(cmd, ReplayResult{
				Sessions:         []ReplaySessionResult{},
				AllDeterministic: true,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found in journal.")
		return nil
	}

	result := ReplayResult{
		Sessions:         make([]ReplaySessionResult, 0, len(sessions)),
		TotalSessions:    len(sessions),
		AllDeterministic: true,
	}

	for _, session := range sessions {
		mirror, err := st.VerifyReplay(ctx, session, logger)
		sessionResult := ReplaySessionResult{
			Session:       session,
			Events:        mirror.Events,
			Images:        len(mirror.Images),
			Categories:    len(mirror.Categories),
			Deterministic: err == nil,
		}
		if err != nil {
			if mirror.Session == "" {
				// Nothing could be replayed at all.
				return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", session), err)
			}
			sessionResult.Error = err.Error()
			result.AllDeterministic = false
		}
		result.Sessions = append(result.Sessions, sessionResult)
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_REPLAY_DIVERGED",
			Message: "replay verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, s := range result.Sessions {
		status := "✓"
		if !s.Deterministic {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Session: %s\n", status, s.Session)
		fmt.Fprintf(w, "  Events: %d, mirror: %d image(s), %d categories\n", s.Events, s.Images, s.Categories)
		if verbose && s.Error != "" {
			fmt.Fprintf(w, "  %s\n", s.Error)
		}
		if !s.Deterministic {
			fmt.Fprintln(w, "  Warning: doubled replay diverged!")
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All sessions replay identically")
		return nil
	}

	fmt.Fprintln(w, "✗ Replay verification failed")
	return NewExitError(ExitFailure, "replay verification failed")
}
