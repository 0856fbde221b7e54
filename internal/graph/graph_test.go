package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldvc/foldvc/internal/event"
)

// diamond builds the smallest divergent history:
//
//	root <- a
//	root <- b
func diamond(t *testing.T) (*Graph, event.Event, event.Event, event.Event) {
	t.Helper()
	g := New()
	root := event.MustNew("kv", []byte("root"), nil)
	a := event.MustNew("kv", []byte("a"), []event.ID{root.ID})
	b := event.MustNew("kv", []byte("b"), []event.ID{root.ID})
	require.NoError(t, g.Admit(root))
	require.NoError(t, g.Admit(a))
	require.NoError(t, g.Admit(b))
	return g, root, a, b
}

func TestAdmitMissingPredecessor(t *testing.T) {
	g := New()
	root := event.MustNew("kv", []byte("root"), nil)
	child := event.MustNew("kv", []byte("c"), []event.ID{root.ID})

	err := g.Admit(child)
	require.ErrorIs(t, err, ErrMissingPredecessor)
	assert.Equal(t, 0, g.Len(), "failed admission must leave the graph unchanged")

	require.NoError(t, g.Admit(root))
	require.NoError(t, g.Admit(child))
	assert.Equal(t, 2, g.Len())
}

func TestAdmitIdempotentReplay(t *testing.T) {
	g := New()
	root := event.MustNew("kv", []byte("root"), nil)
	require.NoError(t, g.Admit(root))
	require.NoError(t, g.Admit(root), "byte-identical re-admission is a no-op")
	assert.Equal(t, 1, g.Len())
}

func TestAdmitRejectsForgedID(t *testing.T) {
	g := New()
	forged := event.Event{ID: "deadbeef", Kind: "kv", Payload: []byte("x")}
	err := g.Admit(forged)
	require.ErrorIs(t, err, ErrIDMismatch)
	assert.Equal(t, 0, g.Len())
}

func TestAdmitDoesNotMoveBranches(t *testing.T) {
	g := New()
	root := event.MustNew("kv", []byte("root"), nil)
	require.NoError(t, g.Admit(root))
	require.NoError(t, g.SetBranch("main", event.NewFrontier(root.ID)))
	require.NoError(t, g.SetBranch("fork", event.NewFrontier(root.ID)))

	// Two branches share the head; a new event on top of it says
	// nothing about which branch it belongs to.
	child := event.MustNew("kv", []byte("c"), []event.ID{root.ID})
	require.NoError(t, g.Admit(child))

	for _, name := range []string{"main", "fork"} {
		head, ok := g.Branch(name)
		require.True(t, ok)
		assert.Equal(t, event.NewFrontier(root.ID), head)
	}

	require.NoError(t, g.SetBranch("main", event.NewFrontier(child.ID)))
	head, _ := g.Branch("main")
	assert.Equal(t, event.NewFrontier(child.ID), head)
	head, _ = g.Branch("fork")
	assert.Equal(t, event.NewFrontier(root.ID), head)
}

func TestSetBranchUnknownEvent(t *testing.T) {
	g := New()
	err := g.SetBranch("main", event.NewFrontier("nope"))
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func TestBranchesSorted(t *testing.T) {
	g, root, _, _ := diamond(t)
	require.NoError(t, g.SetBranch("zeta", event.NewFrontier(root.ID)))
	require.NoError(t, g.SetBranch("alpha", event.NewFrontier(root.ID)))
	assert.Equal(t, []string{"alpha", "zeta"}, g.Branches())
}
