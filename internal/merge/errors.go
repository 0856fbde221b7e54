package merge

import (
	"errors"
	"fmt"

	"github.com/foldvc/foldvc/internal/event"
)

// ConflictError reports a merge that cannot complete automatically:
// either a non-commuting pair the reducer declined to order, or a set
// of resolution decisions that contradict each other. The graph is
// unchanged when this is returned.
type ConflictError struct {
	// First and Second identify the offending pair in ascending-ID
	// order. Both are empty when the failure is not attributable to a
	// single pair.
	First  event.ID
	Second event.ID
	Reason string
}

func (e *ConflictError) Error() string {
	if e.First == "" && e.Second == "" {
		return fmt.Sprintf("merge conflict: %s", e.Reason)
	}
	return fmt.Sprintf("merge conflict between %s and %s: %s", e.First, e.Second, e.Reason)
}

// IsConflict reports whether err is (or wraps) a merge ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
