package graph

import (
	"fmt"
	"sort"

	"github.com/foldvc/foldvc/internal/event"
)

// Record is the serialized form of one event. The persistence
// collaborator stores records verbatim; the on-disk layout around them
// is its concern, not the graph's.
type Record struct {
	ID           event.ID
	Kind         string
	Payload      []byte
	Predecessors []event.ID
}

// Snapshot is the full serialized graph: every event record plus the
// branch pointers. Events are sorted by ID so snapshots of equal graphs
// compare equal.
type Snapshot struct {
	Events   []Record
	Branches map[string]event.Frontier
}

// Snapshot serializes the graph. The result shares no memory with the
// graph and stays valid across later mutations.
func (g *Graph) Snapshot() *Snapshot {
	snap := &Snapshot{
		Events:   make([]Record, 0, len(g.events)),
		Branches: make(map[string]event.Frontier, len(g.branches)),
	}
	for _, id := range g.IDs() {
		ev := g.events[id]
		snap.Events = append(snap.Events, Record{
			ID:           ev.ID,
			Kind:         ev.Kind,
			Payload:      append([]byte(nil), ev.Payload...),
			Predecessors: append([]event.ID(nil), ev.Predecessors...),
		})
	}
	for name, f := range g.branches {
		snap.Branches[name] = f.Clone()
	}
	return snap
}

// Restore rebuilds a graph from a snapshot, re-validating everything a
// live graph guarantees: content-derived IDs, causal completeness and
// acyclicity. Records may appear in any order.
//
// A record set that cannot be fully admitted is either missing
// predecessors (recoverable ErrMissingPredecessor — the caller has a
// truncated snapshot) or cyclic (fatal CorruptionError).
func Restore(snap *Snapshot) (*Graph, error) {
	g := New()

	pending := make(map[event.ID]Record, len(snap.Events))
	for _, rec := range snap.Events {
		pending[rec.ID] = rec
	}

	// Admit in causal waves; within a wave, ascending ID for
	// determinism.
	for len(pending) > 0 {
		var ready []event.ID
		for id, rec := range pending {
			ok := true
			for _, pred := range rec.Predecessors {
				if !g.Has(pred) {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			return nil, diagnoseStuck(g, pending)
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		for _, id := range ready {
			rec := pending[id]
			ev := event.Event{
				ID:           rec.ID,
				Kind:         rec.Kind,
				Payload:      rec.Payload,
				Predecessors: rec.Predecessors,
			}
			if err := g.Admit(ev); err != nil {
				return nil, fmt.Errorf("restore: %w", err)
			}
			delete(pending, id)
		}
	}

	for name, f := range snap.Branches {
		if err := g.SetBranch(name, f); err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
	}
	return g, nil
}

// diagnoseStuck explains why a restore stalled: a predecessor absent
// from the snapshot entirely is a truncated input; otherwise the
// remaining records form a dependency circuit.
func diagnoseStuck(g *Graph, pending map[event.ID]Record) error {
	ids := make([]event.ID, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		for _, pred := range pending[id].Predecessors {
			if _, inPending := pending[pred]; !inPending && !g.Has(pred) {
				return fmt.Errorf("restore %s: predecessor %s: %w", id, pred, ErrMissingPredecessor)
			}
		}
	}
	return &CorruptionError{
		Op:     "restore",
		Detail: fmt.Sprintf("dependency circuit among %d events (first: %s)", len(ids), ids[0]),
	}
}
