package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// DotOptions holds flags for the dot command.
type DotOptions struct {
	*RootOptions
	Output string
}

// NewDotCommand creates the dot command.
func NewDotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dot",
		Short: "Export the event graph as Graphviz dot",
		Long: `Render the whole event graph in Graphviz dot format, with one
cluster per branch.

Examples:
  foldvc dot --db ./repo.db | dot -Tsvg -o repo.svg
  foldvc dot --db ./repo.db -o repo.dot`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(opts.RootOptions)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Output != "" {
				f, err := os.Create(opts.Output)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to create output file", err)
				}
				defer f.Close()
				out = f
			}
			if err := g.WriteDot(out); err != nil {
				return fmt.Errorf("write dot: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
