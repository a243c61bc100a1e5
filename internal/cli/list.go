package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/morgisync/internal/config"
	"github.com/roach88/morgisync/internal/engine"
	"github.com/roach88/morgisync/internal/model"
	"github.com/roach88/morgisync/internal/remote"
	"github.com/roach88/morgisync/internal/store"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Category string
	Offline  bool
}

// ImageRow is one image as printed by list and watch.
type ImageRow struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Site     string `json:"site,omitempty"`
	Favorite bool   `json:"favorite,omitempty"`
	Trashed  bool   `json:"trashed,omitempty"`
	Dead     bool   `json:"dead,omitempty"`
	Source   string `json:"source"`
	Href     string `json:"href"`
}

// ListResult is the data printed by list.
type ListResult struct {
	Active     string     `json:"active"`
	Navigation []string   `json:"navigation"`
	Images     []ImageRow `json:"images"`
	Trash      int        `json:"trash"`
	Offline    bool       `json:"offline,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the images of a category",
		Long: `Pull the store's images and categories and print the images shown
under a category, newest first.

With --offline the last snapshot saved in the journal is shown instead and
the store is not contacted.

Examples:
  morgisync list
  morgisync list --category Favorites
  morgisync list --offline --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Category, "category", "c", "", "category to show (default All)")
	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "show the journal snapshot without contacting the store")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	ctx := cmdContext(cmd)

	if opts.Offline {
		return runListOffline(ctx, opts, cmd)
	}

	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.load(ctx); err != nil {
		return err
	}
	if opts.Category != "" {
		a.engine.SetActiveCategory(opts.Category)
	}
	a.saveSnapshot(ctx)

	return printList(a.out, listResult(a.engine, a.client.Endpoints(), false))
}

func runListOffline(ctx context.Context, opts *ListOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	path := cfg.JournalPath()
	if path == "" {
		return NewExitError(ExitCommandError, "--offline needs a journal")
	}

	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	snap, err := st.LoadSnapshot(ctx)
	if errors.Is(err, store.ErrNoSnapshot) {
		return NewExitError(ExitCommandError, "no snapshot saved yet: run list or watch online first")
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load snapshot", err)
	}

	active := snap.Active
	if opts.Category != "" {
		active = opts.Category
	}
	e := engine.New(nil,
		engine.WithLogger(newLogger(cmd, opts.RootOptions, cfg)),
		engine.WithActiveCategory(active),
	)
	e.Apply(ctx, engine.Snapshot{Images: snap.Images, Categories: snap.Categories})

	return printList(newFormatter(cmd, opts.RootOptions), listResult(e, endpointsFor(cfg), true))
}

func endpointsFor(cfg *config.Config) remote.Endpoints {
	return remote.Endpoints{Base: strings.TrimRight(cfg.Server, "/")}
}

func listResult(e *engine.Engine, endpoints remote.Endpoints, offline bool) ListResult {
	return ListResult{
		Active:     e.ActiveCategory(),
		Navigation: e.Navigation(),
		Images:     imageRows(e.Visible(), endpoints),
		Trash:      e.TrashCount(),
		Offline:    offline,
	}
}

func imageRows(images []model.Image, endpoints remote.Endpoints) []ImageRow {
	rows := make([]ImageRow, len(images))
	for i, img := range images {
		loc := model.Resolve(img)
		rows[i] = ImageRow{
			ID:       img.ID,
			Category: img.Category,
			Site:     img.Site,
			Favorite: img.IsFavorite,
			Trashed:  img.IsDeleted,
			Dead:     img.IsDead,
			Source:   loc.Kind.String(),
			Href:     endpoints.Href(loc),
		}
	}
	return rows
}

func printList(out *OutputFormatter, result ListResult) error {
	if out.Format == "json" {
		return out.Success(result)
	}

	w := out.Writer
	suffix := ""
	if result.Offline {
		suffix = " (offline)"
	}
	fmt.Fprintf(w, "%s: %d image(s)%s\n", result.Active, len(result.Images), suffix)
	writeImageTable(w, result.Images)
	fmt.Fprintf(w, "Categories: %s\n", strings.Join(result.Navigation, ", "))
	if result.Trash > 0 {
		fmt.Fprintf(w, "Trash: %d\n", result.Trash)
	}
	return nil
}

func writeImageTable(w io.Writer, rows []ImageRow) {
	if len(rows) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", row.ID, flags(row), row.Category, row.Source, row.Href)
	}
	tw.Flush()
}

// flags renders favorite, trashed and dead as a fixed-width marker.
func flags(row ImageRow) string {
	b := []byte("---")
	if row.Favorite {
		b[0] = 'F'
	}
	if row.Trashed {
		b[1] = 'T'
	}
	if row.Dead {
		b[2] = 'D'
	}
	return string(b)
}

// cmdContext returns the command's context, or Background when run outside
// Execute.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
