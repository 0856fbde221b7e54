package reducer

import (
	"github.com/foldvc/foldvc/internal/event"
)

// State is the materialized result of folding events from the root to a
// frontier. Implementations are plain values as far as the engine is
// concerned: Clone must produce an independent copy and Equal must be a
// deep semantic comparison.
type State interface {
	Clone() State
	Equal(other State) bool
}

// Order is a Resolve verdict for a non-commuting event pair.
type Order int

const (
	// Unresolved signals that the reducer declines to order the pair;
	// the merge fails and the caller must resolve manually.
	Unresolved Order = iota

	// FirstThenSecond applies the first event before the second.
	FirstThenSecond

	// SecondThenFirst applies the second event before the first.
	SecondThenFirst
)

func (o Order) String() string {
	switch o {
	case FirstThenSecond:
		return "first-then-second"
	case SecondThenFirst:
		return "second-then-first"
	default:
		return "unresolved"
	}
}

// Reducer is the pluggable semantics contract.
//
// All three operations must be deterministic: the same inputs always
// produce the same outputs, across processes and runs. The engine's
// merge determinism guarantee is only as good as the reducer's.
type Reducer interface {
	// Apply executes one event against a state and returns the
	// successor state. It must not mutate its input. A domain-semantic
	// rejection is reported as *ConflictError; any other error is
	// treated as an infrastructure failure.
	Apply(st State, ev event.Event) (State, error)

	// Commute reports whether applying the two events in either order
	// yields the same state. It must be symmetric and conservative:
	// answering false when unsure is safe, answering true incorrectly
	// corrupts merges.
	Commute(a, b event.Event) (bool, error)

	// Resolve orders a non-commuting pair, or returns Unresolved to
	// demand manual resolution. Only consulted for pairs Commute
	// rejected. Must be deterministic; the engine always calls it with
	// the pair in ascending-ID order.
	Resolve(a, b event.Event) (Order, error)
}

// UnresolvedResolver is an embeddable default for reducers that never
// auto-resolve conflicts.
type UnresolvedResolver struct{}

// Resolve always declines.
func (UnresolvedResolver) Resolve(a, b event.Event) (Order, error) {
	return Unresolved, nil
}

// LexOrder resolves a pair so that the lexicographically larger event ID
// is applied last (and therefore wins under last-writer semantics). A
// deterministic, dependency-free tie-break for reducers that want
// automatic resolution.
func LexOrder(a, b event.Event) Order {
	if a.ID < b.ID {
		return FirstThenSecond
	}
	return SecondThenFirst
}

// CommuteByReplay decides commutativity the expensive way: apply both
// orders from clones of a base state and compare the results. Reducers
// without a cheap syntactic predicate can delegate to this.
//
// A *ConflictError in either order means the pair cannot be freely
// reordered, which is reported as non-commuting rather than an error
// (conservative by contract). Other errors propagate.
func CommuteByReplay(r Reducer, base State, a, b event.Event) (bool, error) {
	if a.ID == b.ID {
		return true, nil
	}

	ab, err := applyPair(r, base, a, b)
	if err != nil {
		if IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	ba, err := applyPair(r, base, b, a)
	if err != nil {
		if IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return ab.Equal(ba), nil
}

func applyPair(r Reducer, base State, first, second event.Event) (State, error) {
	st, err := r.Apply(base.Clone(), first)
	if err != nil {
		return nil, err
	}
	return r.Apply(st, second)
}
