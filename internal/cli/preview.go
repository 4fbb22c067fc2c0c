package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pmorrell/splitboard/internal/catalog"
	"github.com/pmorrell/splitboard/internal/content"
	"github.com/pmorrell/splitboard/internal/failover"
	"github.com/pmorrell/splitboard/internal/layout"
)

// PreviewOptions holds flags for the preview command.
type PreviewOptions struct {
	*RootOptions
	GeneratorID string
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PreviewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "preview [text]",
		Short: "Render text or a generator's output as a board grid",
		Long: `Render text onto the 6x22 board grid and print it, without a display.

With --generator, runs the named generator offline (AI generators answer
with canned text) and renders its output instead.

Example:
  splitboard preview "hello world"
  splitboard preview --generator status-card`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.GeneratorID, "generator", "", "generator ID to run instead of literal text")

	return cmd
}

func runPreview(opts *PreviewOptions, args []string, cmd *cobra.Command) error {
	var text string

	switch {
	case opts.GeneratorID != "":
		out, err := previewGenerator(cmd, opts.GeneratorID)
		if err != nil {
			return err
		}
		text = out
	case len(args) == 1:
		text = args[0]
	default:
		return NewExitError(ExitCommandError, "provide text to render or --generator")
	}

	grid := layout.Render(text)

	f := formatter(opts.RootOptions, cmd)
	if f.Format == "json" {
		return f.Success(map[string]any{"text": text, "rows": grid[:]})
	}

	border := "+" + strings.Repeat("-", layout.Cols) + "+"
	fmt.Fprintln(f.Writer, border)
	for _, row := range grid {
		fmt.Fprintf(f.Writer, "|%s|\n", row)
	}
	fmt.Fprintln(f.Writer, border)
	return nil
}

// previewGenerator runs one registered generator against the offline echo
// factory and returns its text.
func previewGenerator(cmd *cobra.Command, id string) (string, error) {
	mapper := previewTiers{}
	cat := catalog.New()
	deps := content.Deps{
		Executor: failover.NewExecutor(mapper),
		Mapper:   mapper,
		Factory:  &content.EchoFactory{},
	}
	if err := content.RegisterAll(cat, deps); err != nil {
		return "", WrapExitError(ExitCommandError, "failed to register generators", err)
	}

	entry := cat.ByID(id)
	if entry == nil {
		return "", NewExitError(ExitCommandError, fmt.Sprintf("no generator registered with id %q", id))
	}

	out, err := entry.Generator.Generate(cmd.Context(), catalog.Context{
		UpdateType: catalog.UpdateMajor,
		Timestamp:  time.Now(),
	})
	if err != nil {
		return "", WrapExitError(ExitFailure, "generation failed", err)
	}
	return out.Text, nil
}

// previewTiers maps every tier to an offline echo selection.
type previewTiers struct{}

func (previewTiers) Primary(tier string) (failover.ModelSelection, bool) {
	return failover.ModelSelection{Provider: "echo", Model: "offline", Tier: tier}, true
}

func (previewTiers) Alternate(tier string) (failover.ModelSelection, bool) {
	return failover.ModelSelection{}, false
}
