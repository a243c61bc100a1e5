package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/morgisync/internal/config"
	"github.com/roach88/morgisync/internal/engine"
	"github.com/roach88/morgisync/internal/remote"
	"github.com/roach88/morgisync/internal/store"
)

// app is the wiring shared by commands that talk to the store: resolved
// config, logger, store client, journal and engine.
type app struct {
	opts    *RootOptions
	cfg     *config.Config
	logger  *slog.Logger
	client  *remote.Client
	journal *store.Store // nil when journaling is disabled
	engine  *engine.Engine
	session string
	out     *OutputFormatter
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Server != "" {
		cfg.Server = opts.Server
	}
	if opts.Journal != "" {
		cfg.SetJournal(opts.Journal)
	}
	return cfg, nil
}

// newLogger writes text logs to the command's stderr. --verbose forces
// debug; otherwise the config's log level applies.
func newLogger(cmd *cobra.Command, opts *RootOptions, cfg *config.Config) *slog.Logger {
	level := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openApp wires a session for cmd. The caller must Close it.
func openApp(cmd *cobra.Command, opts *RootOptions, extra ...engine.Option) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	session := opts.Session
	if session == "" {
		session = engine.UUIDv7Generator{}.Generate()
	}
	logger := newLogger(cmd, opts, cfg).With("session", session)

	client, err := remote.NewClient(cfg.Server, remote.WithTimeout(cfg.RequestTimeout.Std()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid server", err)
	}

	a := &app{
		opts:    opts,
		cfg:     cfg,
		logger:  logger,
		client:  client,
		session: session,
		out:     newFormatter(cmd, opts),
	}
	a.out.Session = session

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if path := cfg.JournalPath(); path != "" {
		st, err := store.Open(path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		a.journal = st
		engineOpts = append(engineOpts, engine.WithJournal(st, session))
		logger.Debug("journal open", "path", path)
	}
	engineOpts = append(engineOpts, extra...)
	a.engine = engine.New(client, engineOpts...)

	return a, nil
}

// Close releases the journal.
func (a *app) Close() {
	if a.journal == nil {
		return
	}
	if err := a.journal.Close(); err != nil {
		a.logger.Error("error closing journal", "error", err)
	}
}

// load pulls the mirror. A store that cannot be reached at startup is a
// command error.
func (a *app) load(ctx context.Context) error {
	if err := a.engine.Load(ctx); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load from %s", a.cfg.Server), err)
	}
	a.out.VerboseLog("Loaded %d image(s), %d categories from %s",
		len(a.engine.Images()), len(a.engine.Categories()), a.cfg.Server)
	return nil
}

// saveSnapshot stores the current mirror for offline listing.
func (a *app) saveSnapshot(ctx context.Context) {
	if a.journal == nil {
		return
	}
	snap := store.Snapshot{
		Session:    a.session,
		Seq:        a.engine.Seq(),
		Active:     a.engine.ActiveCategory(),
		Images:     a.engine.Images(),
		Categories: a.engine.Categories(),
	}
	if err := a.journal.SaveSnapshot(ctx, snap); err != nil {
		a.logger.Warn("snapshot not saved", "error", err)
		return
	}
	a.logger.Debug("snapshot saved", "images", len(snap.Images), "seq", snap.Seq)
}

// fail reports a failed operation in the configured format and returns the
// error to exit with.
func (a *app) fail(op string, err error) error {
	return reportFailure(a.out, op, err)
}

func reportFailure(out *OutputFormatter, op string, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	code := string(engine.CodeOf(err))
	if code == "" {
		code = "E_FAILED"
	}
	if out.Format == "json" {
		if outErr := out.Error(code, err.Error(), map[string]string{"op": op}); outErr != nil {
			return outErr
		}
	}
	return WrapExitError(ExitFailure, op+" failed", err)
}
