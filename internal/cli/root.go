// Package cli implements the foldvc command line tool: a read-only
// window onto a stored event graph. All mutation goes through the
// library API; the CLI only opens databases, never writes them.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/foldvc/foldvc/internal/graph"
	"github.com/foldvc/foldvc/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the foldvc CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "foldvc",
		Short: "foldvc - event-sourced version control",
		Long: "Inspect event graphs produced by the foldvc engine: event logs,\n" +
			"branch heads, merge decisions, and Graphviz exports.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			logLevel := slog.LevelInfo
			if opts.Verbose {
				logLevel = slog.LevelDebug
			}
			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
			slog.SetDefault(slog.New(handler))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")

	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewBranchesCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewDotCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadGraph opens the database and restores the stored graph.
func loadGraph(opts *RootOptions) (*graph.Graph, error) {
	if opts.Database == "" {
		return nil, NewExitError(ExitCommandError, "--db is required")
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	snap, err := st.LoadGraph(context.Background())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load graph", err)
	}
	g, err := graph.Restore(snap)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "stored graph failed validation", err)
	}
	return g, nil
}
