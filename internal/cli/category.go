package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/morgisync/internal/category"
)

// CategoryResult is the data printed by category commands.
type CategoryResult struct {
	Op                 string `json:"op"`
	Name               string `json:"name"`
	NewName            string `json:"new_name,omitempty"`
	Outcome            string `json:"outcome"`
	Affected           int    `json:"affected,omitempty"`
	FavoritesProtected int    `json:"favorites_protected,omitempty"`
}

// CategoryDeleteOptions holds flags for category delete.
type CategoryDeleteOptions struct {
	*RootOptions
	MoveTo       string
	DeleteImages bool
}

// NewCategoryCommand creates the category command group.
func NewCategoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Create, rename and delete categories",
	}
	cmd.AddCommand(newCategoryCreateCommand(rootOpts))
	cmd.AddCommand(newCategoryRenameCommand(rootOpts))
	cmd.AddCommand(newCategoryDeleteCommand(rootOpts))
	return cmd
}

func newCategoryCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "create <name>",
		Short:         "Create a category",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCategory(rootOpts, cmd, nil, func(ctx context.Context, c *category.Controller) (CategoryResult, error) {
				cat, err := c.Create(ctx, args[0])
				if err != nil {
					return CategoryResult{}, err
				}
				return CategoryResult{Name: cat.Name, Outcome: category.Done.String()}, nil
			})
		},
	}
}

func newCategoryRenameCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a category",
		Long: `Rename a category. When the new name already exists you are asked
whether to merge the two; --yes merges without asking.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCategory(rootOpts, cmd, nil, func(ctx context.Context, c *category.Controller) (CategoryResult, error) {
				outcome, err := c.Rename(ctx, args[0], args[1])
				if err != nil {
					return CategoryResult{}, err
				}
				return CategoryResult{Name: args[0], NewName: args[1], Outcome: outcome.String()}, nil
			})
		},
	}
}

func newCategoryDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CategoryDeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a category",
		Long: `Delete a category. When it still has images they are either moved to
another category (--move-to) or deleted with it (--delete-images). Without
either flag you are asked on the terminal.

Favorites are never deleted with their category; the store moves them to
"Uncategorized Favorites".

Examples:
  morgisync category delete Drafts --move-to Art
  morgisync category delete Drafts --delete-images`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.MoveTo != "" && opts.DeleteImages {
				return NewExitError(ExitCommandError, "--move-to and --delete-images are mutually exclusive")
			}
			var res *category.Resolution
			switch {
			case opts.MoveTo != "":
				res = &category.Resolution{Action: category.MoveImages, MoveTo: opts.MoveTo}
			case opts.DeleteImages:
				res = &category.Resolution{Action: category.DeleteImages}
			}
			return runCategory(rootOpts, cmd, res, func(ctx context.Context, c *category.Controller) (CategoryResult, error) {
				result, err := c.Delete(ctx, args[0])
				if err != nil {
					return CategoryResult{}, err
				}
				return CategoryResult{
					Name:               args[0],
					Outcome:            result.Outcome.String(),
					Affected:           result.Affected,
					FavoritesProtected: result.FavoritesProtected,
				}, nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.MoveTo, "move-to", "", "move the category's images here")
	cmd.Flags().BoolVar(&opts.DeleteImages, "delete-images", false, "delete the category's images with it")

	return cmd
}

func runCategory(opts *RootOptions, cmd *cobra.Command, res *category.Resolution, fn func(context.Context, *category.Controller) (CategoryResult, error)) error {
	ctx := cmdContext(cmd)

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.load(ctx); err != nil {
		return err
	}

	p := newPrompter(cmd, opts)
	p.resolution = res
	ctrl := category.New(a.engine, a.client, p, a.logger)

	op := "category " + cmd.Name()
	result, err := fn(ctx, ctrl)
	if err != nil {
		return a.fail(op, err)
	}
	result.Op = op
	a.saveSnapshot(ctx)

	if a.out.Format == "json" {
		return a.out.Success(result)
	}
	fmt.Fprintln(a.out.Writer, categoryMessage(result))
	return nil
}

func categoryMessage(r CategoryResult) string {
	switch r.Outcome {
	case category.Aborted.String():
		return "Rename aborted"
	case category.Cancelled.String():
		return fmt.Sprintf("Category %s kept", r.Name)
	case category.Unchanged.String():
		return "Nothing to change"
	}

	switch r.Op {
	case "category create":
		return fmt.Sprintf("Category %s created", r.Name)
	case "category rename":
		return fmt.Sprintf("Category %s renamed to %s", r.Name, r.NewName)
	default:
		msg := fmt.Sprintf("Category %s deleted (%d image(s) affected)", r.Name, r.Affected)
		if r.FavoritesProtected > 0 {
			msg += fmt.Sprintf(", %d favorite(s) kept", r.FavoritesProtected)
		}
		return msg
	}
}
