package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/morgisync/internal/mutation"
)

// MutationResult is the data printed by image mutations.
type MutationResult struct {
	Op       string `json:"op"`
	ID       string `json:"id,omitempty"`
	Category string `json:"category,omitempty"`
	Favorite *bool  `json:"favorite,omitempty"`
	Removed  int    `json:"removed,omitempty"`
	SafePath string `json:"safe_path,omitempty"`
	Href     string `json:"href,omitempty"`
	Declined bool   `json:"declined,omitempty"`

	message string
}

// mutationFunc runs one mutation against a loaded mirror.
type mutationFunc func(ctx context.Context, c *mutation.Coordinator, args []string) (MutationResult, error)

// NewMutationCommands creates the image mutation commands.
func NewMutationCommands(rootOpts *RootOptions) []*cobra.Command {
	return []*cobra.Command{
		newMutationCommand(rootOpts, "favorite <id>", "Toggle the favorite flag of an image", cobra.ExactArgs(1),
			func(ctx context.Context, c *mutation.Coordinator, args []string) (MutationResult, error) {
				fav, err := c.ToggleFavorite(ctx, args[0])
				if err != nil {
					return MutationResult{}, err
				}
				state := "unfavorited"
				if fav {
					state = "favorited"
				}
				return MutationResult{
					ID:       args[0],
					Favorite: &fav,
					message:  fmt.Sprintf("Image %s %s", args[0], state),
				}, nil
			}),

		newMutationCommand(rootOpts, "trash <id>", "Move an image to the trash", cobra.ExactArgs(1),
			func(ctx context.Context, c *mutation.Coordinator, args []string) (MutationResult, error) {
				if err := c.MoveToTrash(ctx, args[0]); err != nil {
					return MutationResult{}, err
				}
				return MutationResult{ID: args[0], message: fmt.Sprintf("Image %s moved to trash", args[0])}, nil
			}),

		newMutationCommand(rootOpts, "restore <id> <category>", "Restore a trashed image into a category", cobra.ExactArgs(2),
			func(ctx context.Context, c *mutation.Coordinator, args []string) (MutationResult, error) {
				if err := c.Restore(ctx, args[0], args[1]); err != nil {
					return MutationResult{}, err
				}
				return MutationResult{
					ID:       args[0],
					Category: args[1],
					message:  fmt.Sprintf("Image %s restored to %s", args[0], args[1]),
				}, nil
			}),

		newMutationCommand(rootOpts, "move <id> <category>", "Move an image to another category", cobra.ExactArgs(2),
			func(ctx context.Context, c *mutation.Coordinator, args []string) (MutationResult, error) {
				if err := c.ChangeCategory(ctx, args[0], args[1]); err != nil {
					return MutationResult{}, err
				}
				return MutationResult{
					ID:       args[0],
					Category: args[1],
					message:  fmt.Sprintf("Image %s moved to %s", args[0], args[1]),
				}, nil
			}),

		newMutationCommand(rootOpts, "delete <id>", "Delete an image permanently", cobra.ExactArgs(1),
			func(ctx context.Context, c *mutation.Coordinator, args []string) (MutationResult, error) {
				deleted, err := c.PermanentDelete(ctx, args[0])
				if err != nil {
					return MutationResult{}, err
				}
				if !deleted {
					return MutationResult{ID: args[0], Declined: true, message: "Nothing deleted"}, nil
				}
				return MutationResult{ID: args[0], Removed: 1, message: fmt.Sprintf("Image %s deleted", args[0])}, nil
			}),

		newMutationCommand(rootOpts, "empty-trash", "Delete every trashed image permanently", cobra.NoArgs,
			func(ctx context.Context, c *mutation.Coordinator, args []string) (MutationResult, error) {
				removed, err := c.EmptyTrash(ctx)
				if errors.Is(err, mutation.ErrDeclined) {
					return MutationResult{Declined: true, message: "Trash kept"}, nil
				}
				if err != nil {
					return MutationResult{}, err
				}
				return MutationResult{Removed: removed, message: fmt.Sprintf("Trash emptied: %d image(s) deleted", removed)}, nil
			}),

		newMutationCommand(rootOpts, "shield <id>", "Archive an image on the store", cobra.ExactArgs(1),
			func(ctx context.Context, c *mutation.Coordinator, args []string) (MutationResult, error) {
				path, err := c.Shield(ctx, args[0])
				if err != nil {
					return MutationResult{}, err
				}
				return MutationResult{
					ID:       args[0],
					SafePath: path,
					message:  fmt.Sprintf("Image %s archived at %s", args[0], path),
				}, nil
			}),

		newShowCommand(rootOpts),
	}
}

func newMutationCommand(rootOpts *RootOptions, use, short string, args cobra.PositionalArgs, fn mutationFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runMutation(rootOpts, cmd, args, fn)
	}
	return cmd
}

func runMutation(opts *RootOptions, cmd *cobra.Command, args []string, fn mutationFunc) error {
	ctx := cmdContext(cmd)

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.load(ctx); err != nil {
		return err
	}

	coord := mutation.New(a.engine, a.client, newPrompter(cmd, opts), a.client.Endpoints(), a.logger)
	result, err := fn(ctx, coord, args)
	if err != nil {
		return a.fail(cmd.Name(), err)
	}
	result.Op = cmd.Name()
	a.saveSnapshot(ctx)

	if a.out.Format == "json" {
		return a.out.Success(result)
	}
	fmt.Fprintln(a.out.Writer, result.message)
	return nil
}

// newShowCommand creates the show command, which opens the detail view of
// an image and prints where it is displayed from.
func newShowCommand(rootOpts *RootOptions) *cobra.Command {
	var proxy bool

	cmd := newMutationCommand(rootOpts, "show <id>", "Print the display address of an image", cobra.ExactArgs(1), nil)
	cmd.Long = `Open the detail view of an image and print the address it is displayed
from: the archived copy, the store's proxy relay, or the original URL.

With --proxy an image whose origin failed to load is switched to the relay.
The switch happens at most once per image and never contacts the store.`
	cmd.Flags().BoolVar(&proxy, "proxy", false, "switch the image to the proxy relay")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runMutation(rootOpts, cmd, args, func(ctx context.Context, c *mutation.Coordinator, args []string) (MutationResult, error) {
			id := args[0]
			if proxy {
				c.FallbackToProxy(ctx, id)
			}
			href, err := c.OpenDetail(id)
			if err != nil {
				return MutationResult{}, err
			}
			return MutationResult{ID: id, Href: href, message: href}, nil
		})
	}
	return cmd
}
