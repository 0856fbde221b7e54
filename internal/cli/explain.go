package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldvc/foldvc/internal/event"
	"github.com/foldvc/foldvc/internal/merge"
)

// explainOutput is the JSON form of a merge report.
type explainOutput struct {
	MergeID  string      `json:"merge_id"`
	Inputs   []string    `json:"inputs"`
	Boundary []string    `json:"boundary"`
	Order    []string    `json:"order"`
	Resolved [][2]string `json:"resolved"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <merge-id>",
		Short: "Decode a merge event's recorded decisions",
		Long: `Decode a merge event: the boundary it folded onto, the resolved
total order of divergent events, and every pair the reducer had to
order by hand.

Examples:
  foldvc explain --db ./repo.db 3f8a...
  foldvc explain --db ./repo.db 3f8a... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(rootOpts)
			if err != nil {
				return err
			}
			report, err := merge.Explain(g, event.ID(args[0]))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to explain merge", err)
			}

			out := explainOutput{
				MergeID:  string(report.MergeID),
				Inputs:   idStrings(report.Inputs),
				Boundary: idStrings(report.Boundary),
				Order:    idStrings(report.Order),
				Resolved: make([][2]string, len(report.Resolved)),
			}
			for i, p := range report.Resolved {
				out.Resolved[i] = [2]string{string(p.First), string(p.Second)}
			}

			if rootOpts.Format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "merge %s\n", shortID(out.MergeID))
			fmt.Fprintf(w, "inputs:   %s\n", joinShort(out.Inputs))
			fmt.Fprintf(w, "boundary: %s\n", joinShort(out.Boundary))
			fmt.Fprintf(w, "order:    %s\n", joinShort(out.Order))
			if len(out.Resolved) == 0 {
				fmt.Fprintln(w, "resolved: (all pairs commuted)")
			} else {
				fmt.Fprintln(w, "resolved:")
				for _, p := range out.Resolved {
					fmt.Fprintf(w, "  %s before %s\n", shortID(p[0]), shortID(p[1]))
				}
			}
			return nil
		},
	}
	return cmd
}

func joinShort(ids []string) string {
	if len(ids) == 0 {
		return "(root)"
	}
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += " "
		}
		out += shortID(id)
	}
	return out
}
