package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldvc/foldvc/internal/graph"
	"github.com/foldvc/foldvc/internal/kvstate"
	"github.com/foldvc/foldvc/internal/store"
	"github.com/foldvc/foldvc/internal/workcopy"
)

// seedDatabase builds a small repository with one merge and saves it.
// Returns the database path and the merge event ID.
func seedDatabase(t *testing.T) (string, string) {
	t.Helper()
	g := graph.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	main, err := workcopy.Open(g, kvstate.Reducer{}, kvstate.NewMap(nil),
		workcopy.WithLogger(logger))
	require.NoError(t, err)
	_, err = main.Commit(kvstate.Kind, kvstate.Payload(kvstate.OpSet, "x", "1"))
	require.NoError(t, err)

	feature, err := workcopy.Open(g, kvstate.Reducer{}, kvstate.NewMap(nil),
		workcopy.WithLogger(logger), workcopy.WithBranch("feature"))
	require.NoError(t, err)
	_, err = feature.Commit(kvstate.Kind, kvstate.Payload(kvstate.OpSet, "y", "2"))
	require.NoError(t, err)

	res, err := main.MergeBranch("feature")
	require.NoError(t, err)

	snap, err := main.Close()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "repo.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.SaveGraph(context.Background(), snap))
	require.NoError(t, st.Close())
	return path, string(res.Event.ID)
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootRejectsInvalidFormat(t *testing.T) {
	_, err := runCommand(t, "branches", "--format", "xml", "--db", "whatever.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCommandsRequireDatabase(t *testing.T) {
	for _, sub := range []string{"log", "branches", "dot"} {
		t.Run(sub, func(t *testing.T) {
			_, err := runCommand(t, sub)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestBranchesCommand(t *testing.T) {
	path, _ := seedDatabase(t)

	out, err := runCommand(t, "branches", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "feature")

	out, err = runCommand(t, "branches", "--db", path, "--format", "json")
	require.NoError(t, err)
	var entries []struct {
		Name string   `json:"name"`
		Head []string `json:"head"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "feature", entries[0].Name)
	assert.Equal(t, "main", entries[1].Name)
	assert.Len(t, entries[1].Head, 1)
}

func TestLogCommand(t *testing.T) {
	path, mergeID := seedDatabase(t)

	out, err := runCommand(t, "log", "--db", path, "--format", "json")
	require.NoError(t, err)
	var entries []struct {
		ID   string `json:"id"`
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 3, "two commits plus the merge event")
	assert.Equal(t, mergeID, entries[2].ID, "merge event replays last")

	_, err = runCommand(t, "log", "--db", path, "--branch", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExplainCommand(t *testing.T) {
	path, mergeID := seedDatabase(t)

	out, err := runCommand(t, "explain", "--db", path, mergeID)
	require.NoError(t, err)
	assert.Contains(t, out, "merge "+mergeID[:12])
	assert.Contains(t, out, "all pairs commuted")

	out, err = runCommand(t, "explain", "--db", path, mergeID, "--format", "json")
	require.NoError(t, err)
	var report struct {
		MergeID string   `json:"merge_id"`
		Order   []string `json:"order"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, mergeID, report.MergeID)
	assert.Len(t, report.Order, 2)
}

func TestDotCommand(t *testing.T) {
	path, _ := seedDatabase(t)

	out, err := runCommand(t, "dot", "--db", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "digraph"))
	assert.Contains(t, out, "cluster")

	target := filepath.Join(t.TempDir(), "graph.dot")
	_, err = runCommand(t, "dot", "--db", path, "-o", target)
	require.NoError(t, err)
	assert.FileExists(t, target)
}
