package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foldvc/foldvc/internal/event"
	"github.com/foldvc/foldvc/internal/graph"
	"github.com/foldvc/foldvc/internal/reducer"
)

// Materializer produces the state at a frontier. The working copy
// implements it with its cache; Replayer is the uncached fallback.
type Materializer interface {
	StateAt(f event.Frontier) (reducer.State, error)
}

// Replayer materializes states by replaying the whole closure from the
// root state. Correct but uncached; fine for tests and one-shot tools.
type Replayer struct {
	Graph   *graph.Graph
	Reducer reducer.Reducer
	Root    reducer.State
}

// StateAt implements Materializer.
func (rp Replayer) StateAt(f event.Frontier) (reducer.State, error) {
	order, err := ReplayOrder(rp.Graph, f)
	if err != nil {
		return nil, err
	}
	return Replay(rp.Graph, rp.Reducer, rp.Root, order, nil)
}

// Engine runs merges against one graph/reducer pair.
type Engine struct {
	graph   *graph.Graph
	reducer reducer.Reducer
	states  Materializer
	logger  *slog.Logger
	workers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger routes engine logs to the given logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithWorkers caps the commutation check pool. Values below 1 fall back
// to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// NewEngine builds a merge engine. states materializes boundary states;
// pass a Replayer when no cache is available.
func NewEngine(g *graph.Graph, r reducer.Reducer, states Materializer, opts ...Option) *Engine {
	e := &Engine{
		graph:   g,
		reducer: r,
		states:  states,
		logger:  slog.Default(),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	return e
}

// Result is the outcome of a merge.
type Result struct {
	// Frontier is the post-merge frontier: the merge event alone, or
	// the dominant input when no merge event was needed.
	Frontier event.Frontier

	// State is the materialized state at Frontier.
	State reducer.State

	// Event is the admitted merge event; zero-valued on fast-forward.
	Event event.Event

	// FastForward is true when one input already contained the others
	// and the merge degenerated to picking it.
	FastForward bool
}

// commutePair is one cross-branch candidate, held in ascending-ID order.
type commutePair struct {
	lo, hi event.ID
}

// Merge folds the given frontiers into one.
//
// Identical or nested frontiers fast-forward without emitting an event.
// Otherwise the divergent events on each side are checked pairwise for
// commutativity, non-commuting pairs are ordered by the reducer, and a
// single merge event recording the resolved total order is admitted.
// On any error, including *ConflictError, the graph is unchanged.
func (e *Engine) Merge(frontiers ...event.Frontier) (Result, error) {
	if len(frontiers) == 0 {
		return Result{}, errors.New("merge: no frontiers given")
	}
	started := time.Now()

	closures := make([]map[event.ID]struct{}, len(frontiers))
	for i, f := range frontiers {
		cl, err := e.graph.Closure(f)
		if err != nil {
			return Result{}, fmt.Errorf("merge: %w", err)
		}
		closures[i] = cl
	}

	if idx, ok := dominantInput(closures); ok {
		st, err := e.states.StateAt(frontiers[idx])
		if err != nil {
			return Result{}, fmt.Errorf("merge: %w", err)
		}
		e.logger.Debug("merge fast-forwarded",
			"frontier", frontiers[idx].Key(),
			"inputs", len(frontiers))
		return Result{Frontier: frontiers[idx].Clone(), State: st, FastForward: true}, nil
	}

	boundary, err := e.graph.CommonAncestors(frontiers...)
	if err != nil {
		return Result{}, fmt.Errorf("merge: %w", err)
	}
	boundaryClosure, err := e.graph.Closure(boundary)
	if err != nil {
		return Result{}, fmt.Errorf("merge: %w", err)
	}

	divergent := make([][]event.ID, len(frontiers))
	set := make(map[event.ID]struct{})
	unionClosure := make(map[event.ID]struct{})
	for i, f := range frontiers {
		ord, err := e.graph.ExecOrder(f)
		if err != nil {
			return Result{}, fmt.Errorf("merge: %w", err)
		}
		for _, id := range ord {
			unionClosure[id] = struct{}{}
			if _, ok := boundaryClosure[id]; ok {
				continue
			}
			divergent[i] = append(divergent[i], id)
			set[id] = struct{}{}
		}
	}

	pairs, err := e.collectPairs(divergent)
	if err != nil {
		return Result{}, fmt.Errorf("merge: %w", err)
	}
	commutes, err := e.evaluatePairs(pairs)
	if err != nil {
		return Result{}, fmt.Errorf("merge: %w", err)
	}

	edges := make(edgeSet)
	var resolved []ResolvedPair
	conflicts := 0
	for k, p := range pairs {
		if commutes[k] {
			continue
		}
		conflicts++
		lo, _ := e.graph.Get(p.lo)
		hi, _ := e.graph.Get(p.hi)
		order, err := e.reducer.Resolve(lo, hi)
		if err != nil {
			return Result{}, fmt.Errorf("merge: resolve %s/%s: %w", p.lo, p.hi, err)
		}
		switch order {
		case reducer.FirstThenSecond:
			edges.add(p.lo, p.hi)
			resolved = append(resolved, ResolvedPair{First: p.lo, Second: p.hi})
		case reducer.SecondThenFirst:
			edges.add(p.hi, p.lo)
			resolved = append(resolved, ResolvedPair{First: p.hi, Second: p.lo})
		default:
			return Result{}, &ConflictError{
				First:  p.lo,
				Second: p.hi,
				Reason: "events do not commute and the reducer declined to order them",
			}
		}
	}

	causalEdges(e.graph, set, edges)
	if err := recordedOrderEdges(e.graph, unionClosure, set, edges); err != nil {
		return Result{}, fmt.Errorf("merge: %w", err)
	}
	order, err := topoSort(set, edges)
	if err != nil {
		// Pairwise-consistent resolutions can still disagree globally.
		return Result{}, &ConflictError{Reason: err.Error()}
	}

	base, err := e.states.StateAt(boundary)
	if err != nil {
		return Result{}, fmt.Errorf("merge: boundary state: %w", err)
	}
	st, err := Replay(e.graph, e.reducer, base, order, nil)
	if err != nil {
		return Result{}, fmt.Errorf("merge: %w", err)
	}

	payload, err := encodeRecord(Record{Boundary: boundary, Order: order, Resolved: resolved})
	if err != nil {
		return Result{}, fmt.Errorf("merge: %w", err)
	}
	var heads []event.ID
	for _, f := range frontiers {
		heads = append(heads, f...)
	}
	preds, err := e.graph.Compress(heads)
	if err != nil {
		return Result{}, fmt.Errorf("merge: %w", err)
	}
	mergeEvent, err := event.New(event.KindMerge, payload, preds)
	if err != nil {
		return Result{}, fmt.Errorf("merge: %w", err)
	}
	if err := e.graph.Admit(mergeEvent); err != nil {
		return Result{}, fmt.Errorf("merge: %w", err)
	}

	e.logger.Info("merge completed",
		"merge_id", string(mergeEvent.ID),
		"inputs", len(frontiers),
		"divergent", len(set),
		"pairs", len(pairs),
		"conflicts", conflicts,
		"elapsed", time.Since(started))

	return Result{
		Frontier: event.NewFrontier(mergeEvent.ID),
		State:    st,
		Event:    mergeEvent,
	}, nil
}

// collectPairs enumerates the cross-branch candidate pairs: every
// combination of divergent events from two different inputs that is not
// the same event, not a merge event, and not causally related (causal
// order already binds those). The list is sorted so downstream work is
// independent of input arrangement.
func (e *Engine) collectPairs(divergent [][]event.ID) ([]commutePair, error) {
	seen := make(map[commutePair]struct{})
	ancestors := make(map[event.ID]map[event.ID]struct{})
	closureOf := func(id event.ID) (map[event.ID]struct{}, error) {
		if cl, ok := ancestors[id]; ok {
			return cl, nil
		}
		cl, err := e.graph.Closure(event.NewFrontier(id))
		if err != nil {
			return nil, err
		}
		ancestors[id] = cl
		return cl, nil
	}

	var pairs []commutePair
	for i := range divergent {
		for j := i + 1; j < len(divergent); j++ {
			for _, a := range divergent[i] {
				for _, b := range divergent[j] {
					if a == b {
						continue
					}
					eva, _ := e.graph.Get(a)
					evb, _ := e.graph.Get(b)
					if eva.Kind == event.KindMerge || evb.Kind == event.KindMerge {
						continue
					}
					p := commutePair{lo: a, hi: b}
					if p.hi < p.lo {
						p.lo, p.hi = p.hi, p.lo
					}
					if _, ok := seen[p]; ok {
						continue
					}
					clA, err := closureOf(a)
					if err != nil {
						return nil, err
					}
					if _, related := clA[b]; related {
						continue
					}
					clB, err := closureOf(b)
					if err != nil {
						return nil, err
					}
					if _, related := clB[a]; related {
						continue
					}
					seen[p] = struct{}{}
					pairs = append(pairs, p)
				}
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].lo != pairs[j].lo {
			return pairs[i].lo < pairs[j].lo
		}
		return pairs[i].hi < pairs[j].hi
	})
	return pairs, nil
}

// evaluatePairs runs the commutation checks on a bounded worker pool.
// Results land in a slice indexed by pair position, so the outcome is
// identical no matter how the pool schedules the work.
func (e *Engine) evaluatePairs(pairs []commutePair) ([]bool, error) {
	results := make([]bool, len(pairs))
	grp, _ := errgroup.WithContext(context.Background())
	grp.SetLimit(e.workers)
	for k, p := range pairs {
		lo, _ := e.graph.Get(p.lo)
		hi, _ := e.graph.Get(p.hi)
		grp.Go(func() error {
			ok, err := e.reducer.Commute(lo, hi)
			if err != nil {
				return fmt.Errorf("commute %s/%s: %w", lo.ID, hi.ID, err)
			}
			results[k] = ok
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// dominantInput returns the index of a closure that contains every
// other closure, if one exists.
func dominantInput(closures []map[event.ID]struct{}) (int, bool) {
	best := 0
	for i, cl := range closures {
		if len(cl) > len(closures[best]) {
			best = i
		}
	}
	for i, cl := range closures {
		if i == best {
			continue
		}
		for id := range cl {
			if _, ok := closures[best][id]; !ok {
				return 0, false
			}
		}
	}
	return best, true
}
