package merge

import (
	"fmt"
	"sort"

	"github.com/foldvc/foldvc/internal/event"
	"github.com/foldvc/foldvc/internal/graph"
	"github.com/foldvc/foldvc/internal/reducer"
)

// edgeSet is a deduplicated set of ordering constraints. Deduplication
// matters: the same edge can arrive from causality, a resolver decision
// and a recorded merge order, and must count once toward indegree.
type edgeSet map[event.ID]map[event.ID]struct{}

func (s edgeSet) add(from, to event.ID) {
	if from == to {
		return
	}
	m, ok := s[from]
	if !ok {
		m = make(map[event.ID]struct{})
		s[from] = m
	}
	m[to] = struct{}{}
}

// causalEdges adds pred->succ edges for every set member whose
// predecessor is also a set member.
func causalEdges(g *graph.Graph, set map[event.ID]struct{}, edges edgeSet) {
	for id := range set {
		ev, _ := g.Get(id)
		for _, pred := range ev.Predecessors {
			if _, ok := set[pred]; ok {
				edges.add(pred, id)
			}
		}
	}
}

// recordedOrderEdges adds the chain edges implied by every merge event
// in scan: a merge event's recorded order is a total order over its
// divergent events, so its members that are also set members constrain
// each other pairwise. The chain continues across members outside set:
// those sit in the closure the caller replays from, so their position
// is already folded into the base state, but the relative order of the
// surviving members must still hold. Chaining only consecutive raw
// pairs would sever the constraint whenever an interposed event lands
// in a later merge's boundary.
func recordedOrderEdges(g *graph.Graph, scan, set map[event.ID]struct{}, edges edgeSet) error {
	for id := range scan {
		ev, _ := g.Get(id)
		if ev.Kind != event.KindMerge {
			continue
		}
		rec, err := DecodeRecord(ev)
		if err != nil {
			return &graph.CorruptionError{Op: "recorded order", Detail: err.Error()}
		}
		var prev event.ID
		havePrev := false
		for _, cur := range rec.Order {
			if _, ok := set[cur]; !ok {
				continue
			}
			if havePrev {
				edges.add(prev, cur)
			}
			prev, havePrev = cur, true
		}
	}
	return nil
}

// topoSort linearizes set under edges, breaking ties by ascending event
// ID. Returns a descriptive error when the constraints form a circuit.
func topoSort(set map[event.ID]struct{}, edges edgeSet) ([]event.ID, error) {
	indegree := make(map[event.ID]int, len(set))
	for id := range set {
		indegree[id] = 0
	}
	for _, tos := range edges {
		for to := range tos {
			indegree[to]++
		}
	}

	var ready []event.ID
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	order := make([]event.ID, 0, len(set))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		released := false
		for to := range edges[id] {
			indegree[to]--
			if indegree[to] == 0 {
				ready = append(ready, to)
				released = true
			}
		}
		if released {
			sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		}
	}

	if len(order) != len(set) {
		return nil, fmt.Errorf("ordering circuit: %d of %d events unplaceable", len(set)-len(order), len(set))
	}
	return order, nil
}

// ReplayOrder computes the canonical replay order for a frontier's full
// closure. It is graph.ExecOrder plus the constraints recorded by merge
// events in the closure: without those, a resolver decision that ran
// against the ID tie-break would not survive a replay.
func ReplayOrder(g *graph.Graph, f event.Frontier) ([]event.ID, error) {
	closure, err := g.Closure(f)
	if err != nil {
		return nil, err
	}
	edges := make(edgeSet)
	causalEdges(g, closure, edges)
	if err := recordedOrderEdges(g, closure, closure, edges); err != nil {
		return nil, err
	}
	order, err := topoSort(closure, edges)
	if err != nil {
		// Admitted events cannot form a causal circuit, so the recorded
		// orders disagree with the graph.
		return nil, &graph.CorruptionError{Op: "replay order", Detail: err.Error()}
	}
	return order, nil
}

// Replay folds the events named by order onto base, skipping merge
// events (they are structural, not domain mutations) and anything in
// skip (typically the closure of an already-materialized ancestor
// state). Every event replayed here was accepted by the reducer when it
// entered the graph, so a conflict now means the reducer broke its
// determinism contract; that is reported as corruption, not as a
// recoverable conflict.
func Replay(g *graph.Graph, r reducer.Reducer, base reducer.State, order []event.ID, skip map[event.ID]struct{}) (reducer.State, error) {
	st := base.Clone()
	for _, id := range order {
		if _, ok := skip[id]; ok {
			continue
		}
		ev, ok := g.Get(id)
		if !ok {
			return nil, fmt.Errorf("replay %s: %w", id, graph.ErrUnknownEvent)
		}
		if ev.Kind == event.KindMerge {
			continue
		}
		next, err := r.Apply(st, ev)
		if err != nil {
			if reducer.IsConflict(err) {
				return nil, &graph.CorruptionError{
					Op:     "replay",
					Detail: fmt.Sprintf("admitted event %s rejected on replay: %v", id, err),
				}
			}
			return nil, fmt.Errorf("replay %s: %w", id, err)
		}
		st = next
	}
	return st, nil
}
