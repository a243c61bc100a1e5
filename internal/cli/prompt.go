package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/roach88/morgisync/internal/category"
	"github.com/roach88/morgisync/internal/mutation"
)

// ErrNoTerminal is returned when a prompt needs an answer but stdin is not
// a terminal.
var ErrNoTerminal = errors.New("confirmation required but stdin is not a terminal (use --yes)")

// prompter answers confirmation, merge and delete prompts on the terminal.
// It implements mutation.Confirmer and category.Prompter.
type prompter struct {
	in          *bufio.Reader
	out         io.Writer
	yes         bool
	interactive bool

	// resolution answers delete prompts without asking when set from flags.
	resolution *category.Resolution
}

var (
	_ mutation.Confirmer = (*prompter)(nil)
	_ category.Prompter  = (*prompter)(nil)
)

// newPrompter reads answers from opts.In when set, and from stdin
// otherwise. Stdin only counts as interactive when it is a terminal.
func newPrompter(cmd *cobra.Command, opts *RootOptions) *prompter {
	in := opts.In
	interactive := in != nil
	if in == nil {
		in = cmd.InOrStdin()
		if f, ok := in.(*os.File); ok {
			interactive = term.IsTerminal(int(f.Fd()))
		}
	}
	return &prompter{
		in:          bufio.NewReader(in),
		out:         cmd.ErrOrStderr(),
		yes:         opts.Yes,
		interactive: interactive,
	}
}

// Confirm asks the user to approve p. --yes approves without asking.
func (p *prompter) Confirm(ctx context.Context, pr mutation.Prompt) (bool, error) {
	if p.yes {
		return true, nil
	}
	return p.askYesNo(ctx, pr.Title+"\n"+pr.Message)
}

// ConfirmMerge asks whether oldName should be merged into newName.
func (p *prompter) ConfirmMerge(ctx context.Context, oldName, newName string) (bool, error) {
	if p.yes {
		return true, nil
	}
	return p.askYesNo(ctx, fmt.Sprintf("Category %q already exists. Merge %q into it?", newName, oldName))
}

// ResolveDelete asks what to do with the images of a category being
// deleted. Flags take precedence over the prompt.
func (p *prompter) ResolveDelete(ctx context.Context, name string, count int, destinations []string) (category.Resolution, error) {
	if p.resolution != nil {
		return *p.resolution, nil
	}
	if !p.interactive {
		return category.Resolution{}, fmt.Errorf("category %q has %d images: use --move-to or --delete-images", name, count)
	}

	answer, err := p.ask(ctx, fmt.Sprintf("Category %q has %d images. [c]ancel, [d]elete them, or [m]ove them?", name, count))
	if err != nil {
		return category.Resolution{}, err
	}
	switch strings.ToLower(answer) {
	case "d", "delete":
		return category.Resolution{Action: category.DeleteImages}, nil
	case "m", "move":
		dest, err := p.ask(ctx, fmt.Sprintf("Move to (%s):", strings.Join(destinations, ", ")))
		if err != nil {
			return category.Resolution{}, err
		}
		return category.Resolution{Action: category.MoveImages, MoveTo: dest}, nil
	default:
		return category.Resolution{Action: category.Cancel}, nil
	}
}

func (p *prompter) askYesNo(ctx context.Context, question string) (bool, error) {
	answer, err := p.ask(ctx, question+" [y/N]")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// ask prints question and reads one trimmed line. An empty line or EOF is
// an empty answer.
func (p *prompter) ask(ctx context.Context, question string) (string, error) {
	if !p.interactive {
		return "", ErrNoTerminal
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(p.out, "%s ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
