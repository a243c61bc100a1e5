package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/morgisync/internal/capture"
	"github.com/roach88/morgisync/internal/remote"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Site       string
	URL        string
	Category   string
	Width      int
	Height     int
	Resolution string
}

// AddResult is the data printed by add.
type AddResult struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	URL    string `json:"url"`
	Local  bool   `json:"local,omitempty"`
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save an image to the store",
		Long: `Save an image URL to the store under a category.

URLs already saved from this machine are recognised from the journal and
not sent again. The store also reports URLs it already has.

Examples:
  morgisync add --url https://example.com/a.jpg --category Art
  morgisync add --url https://example.com/a.jpg --category Art --resolution "1920 x 1080"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Site, "site", "", "site the image was found on (default: the URL's host)")
	cmd.Flags().StringVar(&opts.URL, "url", "", "image URL (required)")
	_ = cmd.MarkFlagRequired("url")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category to save into (required)")
	_ = cmd.MarkFlagRequired("category")
	cmd.Flags().IntVar(&opts.Width, "width", 0, "image width in pixels")
	cmd.Flags().IntVar(&opts.Height, "height", 0, "image height in pixels")
	cmd.Flags().StringVar(&opts.Resolution, "resolution", "", `image size as "W x H"`)

	return cmd
}

func runAdd(opts *AddOptions, cmd *cobra.Command) error {
	ctx := cmdContext(cmd)

	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	draft := remote.ImageDraft{
		Site:        opts.Site,
		OriginalURL: opts.URL,
		Category:    opts.Category,
		Width:       opts.Width,
		Height:      opts.Height,
	}
	if opts.Resolution != "" && draft.Width == 0 && draft.Height == 0 {
		draft.Width, draft.Height = capture.ParseResolution(opts.Resolution)
	}

	var allow capture.AllowList
	if a.journal != nil {
		allow = a.journal
	}
	saver := capture.NewSaver(a.client, allow, a.logger)

	res, err := saver.Save(ctx, draft)
	if err != nil {
		return a.fail("add", err)
	}

	result := AddResult{Status: res.Status.String(), ID: res.ID, URL: opts.URL, Local: res.Local}
	if a.out.Format == "json" {
		return a.out.Success(result)
	}
	if res.Status == capture.Duplicate {
		fmt.Fprintf(a.out.Writer, "Already saved: %s\n", opts.URL)
		return nil
	}
	fmt.Fprintf(a.out.Writer, "Saved %s as %s\n", opts.URL, res.ID)
	return nil
}
