package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Server     string
	Journal    string
	Yes        bool

	// In is read by interactive prompts. Defaults to the command's stdin.
	In io.Reader

	// Session overrides the generated session id (for testing).
	Session string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the morgisync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "morgisync",
		Short: "morgisync - keep a local mirror of an image store in sync",
		Long: `morgisync mirrors the images and categories of a remote image store,
applies the store's live updates, and runs mutations against it.

Every applied event is journaled to a local SQLite database, which can be
replayed to verify that the mirror is rebuilt identically.`,
		// main reports errors so they are printed once.
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./morgisync.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Server, "server", "", "store server URL")
	cmd.PersistentFlags().StringVar(&opts.Journal, "journal", "", "journal database path")
	cmd.PersistentFlags().BoolVarP(&opts.Yes, "yes", "y", false, "answer yes to confirmation prompts")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewMutationCommands(opts)...)
	cmd.AddCommand(NewCategoryCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
