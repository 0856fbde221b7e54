package workcopy

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldvc/foldvc/internal/event"
	"github.com/foldvc/foldvc/internal/graph"
	"github.com/foldvc/foldvc/internal/kvstate"
	"github.com/foldvc/foldvc/internal/merge"
	"github.com/foldvc/foldvc/internal/reducer"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openKV(t *testing.T, g *graph.Graph, opts ...Option) *Copy {
	t.Helper()
	opts = append([]Option{WithLogger(quiet())}, opts...)
	w, err := Open(g, kvstate.Reducer{}, kvstate.NewMap(nil), opts...)
	require.NoError(t, err)
	return w
}

func set(t *testing.T, w *Copy, key, value string) event.Event {
	t.Helper()
	ev, err := w.Commit(kvstate.Kind, kvstate.Payload(kvstate.OpSet, key, value))
	require.NoError(t, err)
	return ev
}

func TestOpenEmptyGraph(t *testing.T) {
	g := graph.New()
	w := openKV(t, g)

	assert.Equal(t, "main", w.Branch())
	assert.Empty(t, w.Frontier())
	assert.Equal(t, kvstate.Map{}, w.State())
	assert.NotEqual(t, uuid.Nil, w.Session())

	head, ok := g.Branch("main")
	require.True(t, ok)
	assert.Empty(t, head)
}

func TestCommitAdvances(t *testing.T) {
	g := graph.New()
	w := openKV(t, g)

	e1 := set(t, w, "x", "1")
	e2 := set(t, w, "y", "2")

	assert.Equal(t, event.NewFrontier(e2.ID), w.Frontier())
	assert.Equal(t, kvstate.Map{"x": "1", "y": "2"}, w.State())
	assert.Equal(t, []event.ID{e1.ID}, e2.Predecessors)

	head, ok := g.Branch("main")
	require.True(t, ok)
	assert.Equal(t, event.NewFrontier(e2.ID), head)
}

func TestCommitNoOpElided(t *testing.T) {
	g := graph.New()
	w := openKV(t, g)
	set(t, w, "x", "1")
	before := g.Len()
	frontier := w.Frontier()

	_, err := w.Commit(kvstate.Kind, kvstate.Payload(kvstate.OpSet, "x", "1"))
	assert.ErrorIs(t, err, ErrNoOp)
	assert.Equal(t, before, g.Len(), "elided events never enter the graph")
	assert.Equal(t, frontier, w.Frontier())
}

func TestCommitRejectionLeavesCopyUntouched(t *testing.T) {
	g := graph.New()
	w := openKV(t, g)
	set(t, w, "x", "1")
	before := g.Len()
	frontier := w.Frontier()
	state := w.State()

	_, err := w.Commit(kvstate.Kind, []byte(`{"op":"bogus","key":"x"}`))
	require.Error(t, err)
	assert.True(t, reducer.IsConflict(err))
	assert.Equal(t, before, g.Len())
	assert.Equal(t, frontier, w.Frontier())
	assert.Equal(t, state, w.State())
}

func TestCheckoutRematerializes(t *testing.T) {
	g := graph.New()
	w := openKV(t, g)
	e1 := set(t, w, "x", "1")
	set(t, w, "y", "2")

	require.NoError(t, w.Checkout(event.NewFrontier(e1.ID)))
	assert.Equal(t, kvstate.Map{"x": "1"}, w.State())

	// Branch pointer stays put until the next commit.
	head, _ := g.Branch("main")
	assert.NotEqual(t, event.NewFrontier(e1.ID), head)

	e3 := set(t, w, "z", "3")
	assert.Equal(t, []event.ID{e1.ID}, e3.Predecessors)
	head, _ = g.Branch("main")
	assert.Equal(t, event.NewFrontier(e3.ID), head)
}

func TestCheckoutUsesNearestCachedAncestor(t *testing.T) {
	g := graph.New()
	seed := openKV(t, g)
	e1 := set(t, seed, "a", "1")
	e2 := set(t, seed, "b", "2")
	e3 := set(t, seed, "c", "3")
	_, err := seed.Close()
	require.NoError(t, err)

	counting := reducer.NewCounting(kvstate.Reducer{})
	w, err := Open(g, counting, kvstate.NewMap(nil), WithLogger(quiet()))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), counting.Counts().Applies, "cold open replays the branch")

	// Head state was cached at open; checking it out again is free.
	counting.Reset()
	require.NoError(t, w.Checkout(event.NewFrontier(e3.ID)))
	assert.Equal(t, uint64(0), counting.Counts().Applies)

	// An ancestor of the cached head cannot reuse it; replay from root.
	counting.Reset()
	require.NoError(t, w.Checkout(event.NewFrontier(e1.ID)))
	assert.Equal(t, uint64(1), counting.Counts().Applies)

	// Now e1's state is cached; e2 only needs the delta.
	counting.Reset()
	require.NoError(t, w.Checkout(event.NewFrontier(e2.ID)))
	assert.Equal(t, uint64(1), counting.Counts().Applies)
}

func TestMergeBranches(t *testing.T) {
	g := graph.New()
	main := openKV(t, g)
	set(t, main, "x", "1")

	feature, err := Open(g, kvstate.Reducer{}, kvstate.NewMap(nil),
		WithLogger(quiet()), WithBranch("feature"))
	require.NoError(t, err)
	set(t, feature, "y", "2")

	res, err := main.MergeBranch("feature")
	require.NoError(t, err)
	assert.Equal(t, kvstate.Map{"x": "1", "y": "2"}, main.State())
	assert.Equal(t, res.Frontier, main.Frontier())

	head, _ := g.Branch("main")
	assert.Equal(t, res.Frontier, head)
}

func TestMergeConflictLeavesCopyUntouched(t *testing.T) {
	g := graph.New()
	main := openKV(t, g)
	set(t, main, "x", "1")
	frontier := main.Frontier()

	feature, err := Open(g, kvstate.Reducer{}, kvstate.NewMap(nil),
		WithLogger(quiet()), WithBranch("feature"))
	require.NoError(t, err)
	set(t, feature, "x", "2")
	before := g.Len()

	_, err = main.MergeBranch("feature")
	require.Error(t, err)
	assert.True(t, merge.IsConflict(err))
	assert.Equal(t, frontier, main.Frontier())
	assert.Equal(t, kvstate.Map{"x": "1"}, main.State())
	assert.Equal(t, before, g.Len())
}

func TestMergeUnknownBranch(t *testing.T) {
	g := graph.New()
	w := openKV(t, g)
	_, err := w.MergeBranch("nope")
	assert.ErrorIs(t, err, graph.ErrUnknownEvent)
}

func TestCloseSnapshotAndErrClosed(t *testing.T) {
	g := graph.New()
	w := openKV(t, g)
	set(t, w, "x", "1")

	snap, err := w.Close()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Len(t, snap.Events, 1)
	assert.Contains(t, snap.Branches, "main")

	_, err = w.Commit(kvstate.Kind, kvstate.Payload(kvstate.OpSet, "y", "2"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, w.Checkout(event.NewFrontier()), ErrClosed)
	_, err = w.Merge()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = w.Close()
	assert.ErrorIs(t, err, ErrClosed)

	// The snapshot survives independently of the closed copy.
	restored, err := graph.Restore(snap)
	require.NoError(t, err)
	assert.Equal(t, g.Len(), restored.Len())
}

func TestReopenAdoptsBranch(t *testing.T) {
	g := graph.New()
	w := openKV(t, g)
	set(t, w, "x", "1")
	e2 := set(t, w, "y", "2")
	_, err := w.Close()
	require.NoError(t, err)

	w2 := openKV(t, g)
	assert.Equal(t, event.NewFrontier(e2.ID), w2.Frontier())
	assert.Equal(t, kvstate.Map{"x": "1", "y": "2"}, w2.State())
}
