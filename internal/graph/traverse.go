package graph

import (
	"fmt"
	"iter"
	"sort"

	"github.com/foldvc/foldvc/internal/event"
)

// Closure returns the full ancestor set of a frontier: the frontier
// events themselves plus everything reachable through predecessors.
// Fails with ErrUnknownEvent if a frontier member is not in the graph; a
// missing event encountered mid-walk is corruption, since admission
// guarantees causal completeness.
func (g *Graph) Closure(f event.Frontier) (map[event.ID]struct{}, error) {
	out := make(map[event.ID]struct{}, len(f))
	stack := make([]event.ID, 0, len(f))
	for _, id := range f {
		if !g.Has(id) {
			return nil, fmt.Errorf("closure: %s: %w", id, ErrUnknownEvent)
		}
		stack = append(stack, id)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := out[id]; seen {
			continue
		}
		ev, ok := g.events[id]
		if !ok {
			return nil, &CorruptionError{Op: "closure", Detail: fmt.Sprintf("dangling predecessor %s", id)}
		}
		out[id] = struct{}{}
		stack = append(stack, ev.Predecessors...)
	}
	return out, nil
}

// Compress strips implied events from a set: any member that is a strict
// ancestor of another member is dropped, leaving only the maximal
// elements. The result is the smallest frontier denoting the same
// closure.
func (g *Graph) Compress(ids []event.ID) (event.Frontier, error) {
	members := event.NewFrontier(ids...)
	dominated := make(map[event.ID]struct{})
	for _, id := range members {
		ev, ok := g.events[id]
		if !ok {
			return nil, fmt.Errorf("compress: %s: %w", id, ErrUnknownEvent)
		}
		// Everything below a member is implied by it.
		below, err := g.Closure(event.NewFrontier(ev.Predecessors...))
		if err != nil {
			return nil, err
		}
		for anc := range below {
			dominated[anc] = struct{}{}
		}
	}
	var out event.Frontier
	for _, id := range members {
		if _, ok := dominated[id]; !ok {
			out = append(out, id)
		}
	}
	return event.NewFrontier(out...), nil
}

// Ancestors yields every causal ancestor of the given event in
// reverse-causal order: descendants before their ancestors, ties broken
// by descending event ID. The sequence is finite, deterministic, and
// restartable (each range recomputes from the graph).
//
// An unknown ID yields an empty sequence; use Has to distinguish.
func (g *Graph) Ancestors(id event.ID) iter.Seq[event.Event] {
	return func(yield func(event.Event) bool) {
		ev, ok := g.events[id]
		if !ok {
			return
		}
		order, err := g.ExecOrder(event.NewFrontier(ev.Predecessors...))
		if err != nil {
			// Closure of an admitted event cannot fail on an intact
			// graph; a corrupt graph has nothing sensible to yield.
			return
		}
		for i := len(order) - 1; i >= 0; i-- {
			if !yield(g.events[order[i]]) {
				return
			}
		}
	}
}

// CommonAncestors computes the merge boundary of several frontiers: the
// events that are ancestors of every frontier and have no descendant
// with the same property.
func (g *Graph) CommonAncestors(frontiers ...event.Frontier) (event.Frontier, error) {
	if len(frontiers) == 0 {
		return event.NewFrontier(), nil
	}
	inter, err := g.Closure(frontiers[0])
	if err != nil {
		return nil, err
	}
	for _, f := range frontiers[1:] {
		cl, err := g.Closure(f)
		if err != nil {
			return nil, err
		}
		for id := range inter {
			if _, ok := cl[id]; !ok {
				delete(inter, id)
			}
		}
	}

	// The intersection of ancestor-closed sets is ancestor-closed, so
	// marking direct predecessors is enough to eliminate every
	// non-maximal element.
	nonMax := make(map[event.ID]struct{})
	for id := range inter {
		for _, pred := range g.events[id].Predecessors {
			nonMax[pred] = struct{}{}
		}
	}
	var out event.Frontier
	for id := range inter {
		if _, ok := nonMax[id]; !ok {
			out = append(out, id)
		}
	}
	return event.NewFrontier(out...), nil
}

// ExecOrder produces the canonical replay order for a frontier's
// closure: a topological order of the causal relation with ties broken
// by ascending event ID. Two graphs holding the same events always
// produce the same order.
//
// A cycle in the walked region is a structural-invariant violation and
// returns a CorruptionError.
func (g *Graph) ExecOrder(f event.Frontier) ([]event.ID, error) {
	closure, err := g.Closure(f)
	if err != nil {
		return nil, err
	}

	indegree := make(map[event.ID]int, len(closure))
	children := make(map[event.ID][]event.ID, len(closure))
	for id := range closure {
		indegree[id] = 0
	}
	for id := range closure {
		for _, pred := range g.events[id].Predecessors {
			indegree[id]++
			children[pred] = append(children[pred], id)
		}
	}

	var ready []event.ID
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	order := make([]event.ID, 0, len(closure))
	for len(ready) > 0 {
		// Smallest ready ID first keeps the order canonical.
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		released := false
		for _, child := range children[id] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
				released = true
			}
		}
		if released {
			sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		}
	}

	if len(order) != len(closure) {
		return nil, &CorruptionError{
			Op:     "exec order",
			Detail: fmt.Sprintf("dependency circuit: %d of %d events unreachable", len(closure)-len(order), len(closure)),
		}
	}
	return order, nil
}
