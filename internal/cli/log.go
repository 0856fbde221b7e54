package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldvc/foldvc/internal/event"
	"github.com/foldvc/foldvc/internal/merge"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Branch string
}

// logEntry is one event in the canonical replay order.
type logEntry struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	Predecessors []string `json:"predecessors,omitempty"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List a branch's events in canonical replay order",
		Long: `List every event in a branch's history, oldest first, in the exact
order a replay applies them: causal order, recorded merge decisions,
then ascending event ID.

Examples:
  foldvc log --db ./repo.db
  foldvc log --db ./repo.db --branch feature --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Branch, "branch", "main", "branch to list")
	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	g, err := loadGraph(opts.RootOptions)
	if err != nil {
		return err
	}
	head, ok := g.Branch(opts.Branch)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown branch %q", opts.Branch))
	}
	order, err := merge.ReplayOrder(g, head)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to order history", err)
	}

	entries := make([]logEntry, 0, len(order))
	for _, id := range order {
		ev, _ := g.Get(id)
		entries = append(entries, logEntry{
			ID:           string(ev.ID),
			Kind:         ev.Kind,
			Predecessors: idStrings(ev.Predecessors),
		})
	}

	if opts.Format == "json" {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(entries)
	}
	for _, e := range entries {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", shortID(e.ID), e.Kind)
	}
	return nil
}

func idStrings(ids []event.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// shortID abbreviates an event ID for text output.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
