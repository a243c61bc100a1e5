package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/morgisync/internal/engine"
	"github.com/roach88/morgisync/internal/live"
	"github.com/roach88/morgisync/internal/remote"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Category string

	// Dialer overrides the websocket dialer (for testing).
	Dialer live.Dialer
}

// ViewChange is printed for every event applied while watching.
type ViewChange struct {
	Seq    int64      `json:"seq"`
	Event  string     `json:"event"`
	Active string     `json:"active"`
	Images []ImageRow `json:"images"`
	Trash  int        `json:"trash"`
	Detail string     `json:"detail,omitempty"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return newWatchCommand(&WatchOptions{RootOptions: rootOpts})
}

func newWatchCommand(opts *WatchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the mirror in sync with the store's live updates",
		Long: `Load the mirror, then follow the store's live channel and print the
view after every change until interrupted.

The channel reconnects with exponential backoff, and every reconnect pulls
the images missed while it was down. On exit the mirror is saved to the
journal for list --offline.

Examples:
  morgisync watch
  morgisync watch --category Favorites --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Category, "category", "c", "", "category to show (default All)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	// Set before the first event is applied.
	var (
		out       *OutputFormatter
		endpoints remote.Endpoints
	)
	observer := engine.ObserverFunc(func(v engine.View) {
		printViewChange(out, ViewChange{
			Seq:    v.Seq,
			Event:  v.Event,
			Active: v.Active,
			Images: imageRows(v.Visible, endpoints),
			Trash:  v.TrashCount,
			Detail: v.DetailID,
		})
	})

	extra := []engine.Option{engine.WithObserver(observer)}
	if opts.Category != "" {
		extra = append(extra, engine.WithActiveCategory(opts.Category))
	}
	a, err := openApp(cmd, opts.RootOptions, extra...)
	if err != nil {
		return err
	}
	defer a.Close()
	out = a.out
	endpoints = a.client.Endpoints()

	dialer := opts.Dialer
	if dialer == nil {
		url, err := endpoints.LiveURL(a.cfg.Live.Path)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid live channel address", err)
		}
		dialer = remote.NewWSDialer(url)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(cmdContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := a.load(ctx); err != nil {
		return err
	}

	mgr := live.New(dialer, a.engine,
		live.WithLogger(a.logger),
		live.WithBackoff(a.cfg.Live.InitialBackoff.Std(), a.cfg.Live.MaxBackoff.Std()),
		live.WithStateHook(func(s live.State) {
			a.logger.Info("live channel state", "state", s.String())
		}),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	var engineErr error
	go func() {
		defer wg.Done()
		engineErr = a.engine.Run(ctx)
	}()

	a.logger.Info("watching", "server", a.cfg.Server, "active", a.engine.ActiveCategory())
	liveErr := mgr.Run(ctx)

	cancel()
	wg.Wait()

	a.saveSnapshot(context.Background())
	a.logger.Info("watch stopped", "seq", a.engine.Seq())

	for _, err := range []error{liveErr, engineErr} {
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return WrapExitError(ExitFailure, "watch failed", err)
		}
	}
	return nil
}

func printViewChange(out *OutputFormatter, v ViewChange) {
	if out == nil {
		return
	}
	if out.Format == "json" {
		_ = out.Success(v)
		return
	}
	fmt.Fprintf(out.Writer, "#%d %s: %s, %d image(s), %d in trash\n", v.Seq, v.Event, v.Active, len(v.Images), v.Trash)
	if out.Verbose {
		writeImageTable(out.Writer, v.Images)
	}
}
