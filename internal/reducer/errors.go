package reducer

import (
	"errors"
	"fmt"

	"github.com/foldvc/foldvc/internal/event"
)

// ConflictError is a domain-semantic rejection: the event cannot be
// legally applied to the state it was offered. Recoverable — the graph
// and state are left untouched and the caller may amend the payload.
type ConflictError struct {
	// EventID identifies the rejected event. Empty when the event was
	// rejected before admission (it has no ID yet).
	EventID event.ID

	// Reason is the reducer's human-readable explanation.
	Reason string
}

func (e *ConflictError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("conflict applying %s: %s", e.EventID, e.Reason)
	}
	return fmt.Sprintf("conflict: %s", e.Reason)
}

// Conflictf builds a ConflictError with a formatted reason.
func Conflictf(id event.ID, format string, args ...any) *ConflictError {
	return &ConflictError{EventID: id, Reason: fmt.Sprintf(format, args...)}
}

// IsConflict reports whether err is (or wraps) a domain-semantic
// rejection.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
