package graph

import (
	"errors"
	"fmt"
)

// Recoverable admission errors. The graph is left unchanged when any of
// these is returned; callers may correct the input and retry.
var (
	// ErrMissingPredecessor indicates an event referenced a causal
	// parent that is not (yet) in the graph.
	ErrMissingPredecessor = errors.New("missing predecessor")

	// ErrDuplicateEvent indicates an event ID is already present with
	// different content. Re-admitting an identical event is a no-op,
	// not an error.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrIDMismatch indicates an event's ID does not match its content.
	// Events built through event.New never trip this.
	ErrIDMismatch = errors.New("event id does not match content")

	// ErrUnknownEvent indicates a lookup for an ID the graph has never
	// admitted.
	ErrUnknownEvent = errors.New("unknown event")
)

// CorruptionError reports a structural-invariant violation: a cycle in
// the predecessor relation, an unreachable dependency mid-walk, or a
// restore of inconsistent records.
//
// CRITICAL: corruption is fatal for the operation that detected it.
// Callers must abort rather than attempt repair; the invariants broken
// here are supposed to be unbreakable.
type CorruptionError struct {
	Op     string // operation that detected the violation
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("graph corruption in %s: %s", e.Op, e.Detail)
}

// IsCorruption reports whether err is (or wraps) a structural-invariant
// violation.
func IsCorruption(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}
