package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// branchEntry is one branch with its head frontier.
type branchEntry struct {
	Name string   `json:"name"`
	Head []string `json:"head"`
}

// NewBranchesCommand creates the branches command.
func NewBranchesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branches",
		Short: "List branches and their head frontiers",
		Long: `List every branch in the graph with its head frontier.

Examples:
  foldvc branches --db ./repo.db
  foldvc branches --db ./repo.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(rootOpts)
			if err != nil {
				return err
			}

			entries := make([]branchEntry, 0)
			for _, name := range g.Branches() {
				head, _ := g.Branch(name)
				entries = append(entries, branchEntry{Name: name, Head: idStrings(head)})
			}

			if rootOpts.Format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(entries)
			}
			for _, e := range entries {
				heads := make([]string, len(e.Head))
				for i, h := range e.Head {
					heads[i] = shortID(h)
				}
				if len(heads) == 0 {
					heads = []string{"(root)"}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.Name, strings.Join(heads, " "))
			}
			return nil
		},
	}
	return cmd
}
