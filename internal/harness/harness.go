package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/foldvc/foldvc/internal/event"
	"github.com/foldvc/foldvc/internal/graph"
	"github.com/foldvc/foldvc/internal/kvstate"
	"github.com/foldvc/foldvc/internal/merge"
	"github.com/foldvc/foldvc/internal/reducer"
	"github.com/foldvc/foldvc/internal/workcopy"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Trace is the deterministic line-per-action record of the run,
	// with event IDs replaced by admission-order aliases.
	Trace []string

	// States holds the final materialized state of every branch.
	States map[string]kvstate.Map
}

// Run executes a scenario and produces its trace.
//
// Merges marked expect_conflict record the conflict and continue; any
// other failure aborts the run.
func Run(s *Scenario) (*Result, error) {
	r, err := reducerFor(s.Reducer)
	if err != nil {
		return nil, err
	}

	g := graph.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	copies := make(map[string]*workcopy.Copy)
	aliases := make(map[event.ID]string)
	nextAlias := 0

	alias := func(id event.ID) string {
		if a, ok := aliases[id]; ok {
			return a
		}
		nextAlias++
		a := fmt.Sprintf("e%d", nextAlias)
		aliases[id] = a
		return a
	}

	open := func(name, from string) (*workcopy.Copy, error) {
		if w, ok := copies[name]; ok {
			return w, nil
		}
		if from != "" {
			head, ok := g.Branch(from)
			if !ok {
				return nil, fmt.Errorf("branch %q forks from unknown branch %q", name, from)
			}
			if err := g.SetBranch(name, head); err != nil {
				return nil, err
			}
		}
		w, err := workcopy.Open(g, r, kvstate.NewMap(nil),
			workcopy.WithBranch(name), workcopy.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		copies[name] = w
		return w, nil
	}

	trace := []string{"scenario " + s.Name}

	for _, b := range s.Branches {
		w, err := open(b.Name, b.From)
		if err != nil {
			return nil, err
		}
		if b.From != "" {
			trace = append(trace, fmt.Sprintf("branch %s from %s", b.Name, b.From))
		}
		for _, c := range b.Commits {
			payload := kvstate.Payload(c.Op, c.Key, c.Value)
			ev, err := w.Commit(kvstate.Kind, payload)
			if errors.Is(err, workcopy.ErrNoOp) {
				trace = append(trace, fmt.Sprintf("commit %s elided %s", b.Name, payload))
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
			}
			trace = append(trace, fmt.Sprintf("commit %s %s %s", b.Name, alias(ev.ID), payload))
		}
	}

	for _, m := range s.Merges {
		w, err := open(m.Into, "")
		if err != nil {
			return nil, err
		}
		frontiers := make([]event.Frontier, 0, len(m.From))
		for _, name := range m.From {
			head, ok := g.Branch(name)
			if !ok {
				return nil, fmt.Errorf("merge into %q: unknown branch %q", m.Into, name)
			}
			frontiers = append(frontiers, head)
		}

		res, err := w.Merge(frontiers...)
		if err != nil {
			var ce *merge.ConflictError
			if errors.As(err, &ce) && m.ExpectConflict {
				trace = append(trace, fmt.Sprintf("merge %s from [%s] conflict %s/%s",
					m.Into, strings.Join(m.From, " "), aliases[ce.First], aliases[ce.Second]))
				continue
			}
			return nil, fmt.Errorf("scenario %s: merge into %q: %w", s.Name, m.Into, err)
		}
		if m.ExpectConflict {
			return nil, fmt.Errorf("scenario %s: merge into %q expected a conflict but succeeded", s.Name, m.Into)
		}

		if res.FastForward {
			trace = append(trace, fmt.Sprintf("merge %s from [%s] fast-forward",
				m.Into, strings.Join(m.From, " ")))
			continue
		}
		rec, err := merge.DecodeRecord(res.Event)
		if err != nil {
			return nil, err
		}
		trace = append(trace, fmt.Sprintf("merge %s from [%s] merged %s order [%s] resolved [%s]",
			m.Into, strings.Join(m.From, " "), alias(res.Event.ID),
			aliasList(aliases, rec.Order), resolvedList(aliases, rec.Resolved)))
	}

	states := make(map[string]kvstate.Map)
	materialize := merge.Replayer{Graph: g, Reducer: r, Root: kvstate.NewMap(nil)}
	for _, name := range g.Branches() {
		head, _ := g.Branch(name)
		st, err := materialize.StateAt(head)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: materialize %q: %w", s.Name, name, err)
		}
		m := st.(kvstate.Map)
		states[name] = m
		trace = append(trace, fmt.Sprintf("state %s %s", name, renderState(m)))
	}

	return &Result{Trace: trace, States: states}, nil
}

// CheckExpect verifies a scenario's expected final state against a run.
func CheckExpect(s *Scenario, res *Result) error {
	if s.Expect == nil {
		return nil
	}
	branch := s.Expect.Branch
	if branch == "" {
		branch = "main"
	}
	got, ok := res.States[branch]
	if !ok {
		return fmt.Errorf("scenario %s: expected branch %q does not exist", s.Name, branch)
	}
	want := kvstate.NewMap(s.Expect.State)
	if !got.Equal(want) {
		return fmt.Errorf("scenario %s: branch %q state %s, expected %s",
			s.Name, branch, renderState(got), renderState(want))
	}
	return nil
}

func reducerFor(name string) (reducer.Reducer, error) {
	switch name {
	case "", "kv":
		return kvstate.Reducer{}, nil
	case "kv-lww":
		return kvstate.Reducer{LWW: true}, nil
	default:
		return nil, fmt.Errorf("unknown reducer %q", name)
	}
}

func aliasList(aliases map[event.ID]string, ids []event.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = aliases[id]
	}
	return strings.Join(parts, " ")
}

func resolvedList(aliases map[event.ID]string, pairs []merge.ResolvedPair) string {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = aliases[p.First] + "<" + aliases[p.Second]
	}
	return strings.Join(parts, " ")
}

// renderState prints a map in sorted key order.
func renderState(m kvstate.Map) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return "{" + strings.Join(parts, " ") + "}"
}
