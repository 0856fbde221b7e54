package graph

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/foldvc/foldvc/internal/event"
)

// Graph is the in-memory event arena plus named branch pointers.
//
// INVARIANTS:
//   - append-only: events are never mutated or removed
//   - causal completeness: every predecessor of a stored event is stored
//   - acyclic: guaranteed by admission order (a new event can only
//     reference what already exists)
//
// Graph is not safe for concurrent mutation; the owning working copy
// serializes writers. Read-only use of a graph that no one is mutating
// is safe from any number of goroutines.
type Graph struct {
	events   map[event.ID]event.Event
	branches map[string]event.Frontier
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		events:   make(map[event.ID]event.Event),
		branches: make(map[string]event.Frontier),
	}
}

// Len returns the number of admitted events.
func (g *Graph) Len() int {
	return len(g.events)
}

// Has reports whether the event is known.
func (g *Graph) Has(id event.ID) bool {
	_, ok := g.events[id]
	return ok
}

// Get returns the event with the given ID.
func (g *Graph) Get(id event.ID) (event.Event, bool) {
	ev, ok := g.events[id]
	return ev, ok
}

// IDs returns all event IDs in ascending order.
func (g *Graph) IDs() []event.ID {
	ids := make([]event.ID, 0, len(g.events))
	for id := range g.events {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Admit inserts an event into the graph.
//
// Fails with ErrMissingPredecessor if any causal parent is absent and
// with ErrDuplicateEvent if the ID is taken by different content;
// re-admitting a byte-identical event is an idempotent no-op. On any
// error the graph is unchanged.
//
// Admission never moves branch pointers: several branches may share a
// head, and only the owner of the new event knows which of them is
// extending. Callers advance branches explicitly through SetBranch.
func (g *Graph) Admit(ev event.Event) error {
	id, err := event.ComputeID(ev.Kind, ev.Payload, ev.Predecessors)
	if err != nil {
		return fmt.Errorf("admit: %w", err)
	}
	if id != ev.ID {
		return fmt.Errorf("admit %s: %w", ev.ID, ErrIDMismatch)
	}

	if existing, ok := g.events[ev.ID]; ok {
		if sameEvent(existing, ev) {
			return nil
		}
		// Content-derived IDs make this a hash collision; in practice
		// it means the caller hand-built the event.
		return fmt.Errorf("admit %s: %w", ev.ID, ErrDuplicateEvent)
	}

	for _, pred := range ev.Predecessors {
		if pred == ev.ID {
			return &CorruptionError{Op: "admit", Detail: fmt.Sprintf("event %s lists itself as predecessor", ev.ID)}
		}
		if !g.Has(pred) {
			return fmt.Errorf("admit %s: predecessor %s: %w", ev.ID, pred, ErrMissingPredecessor)
		}
	}

	g.events[ev.ID] = ev.Clone()
	return nil
}

// Branch returns the frontier of a named branch.
func (g *Graph) Branch(name string) (event.Frontier, bool) {
	f, ok := g.branches[name]
	if !ok {
		return nil, false
	}
	return f.Clone(), true
}

// SetBranch points a branch at a frontier. All frontier events must be
// known; an empty frontier is valid and denotes the graph root.
func (g *Graph) SetBranch(name string, f event.Frontier) error {
	for _, id := range f {
		if !g.Has(id) {
			return fmt.Errorf("set branch %q: %s: %w", name, id, ErrUnknownEvent)
		}
	}
	g.branches[name] = f.Clone()
	return nil
}

// Branches returns all branch names in ascending order.
func (g *Graph) Branches() []string {
	names := make([]string, 0, len(g.branches))
	for name := range g.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sameEvent(a, b event.Event) bool {
	if a.ID != b.ID || a.Kind != b.Kind || !bytes.Equal(a.Payload, b.Payload) {
		return false
	}
	return event.NewFrontier(a.Predecessors...).Equal(event.NewFrontier(b.Predecessors...))
}
