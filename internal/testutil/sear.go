// Package testutil provides test-only reducers and helpers shared by
// the engine packages' tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/foldvc/foldvc/internal/event"
	"github.com/foldvc/foldvc/internal/reducer"
)

// SearKind tags search-and-replace events.
const SearKind = "sear"

// Text is a string state for the sear reducer.
type Text string

// Clone implements reducer.State.
func (t Text) Clone() reducer.State { return t }

// Equal implements reducer.State.
func (t Text) Equal(other reducer.State) bool {
	o, ok := other.(Text)
	return ok && o == t
}

// SearPayload builds a canonical search-and-replace payload.
func SearPayload(find, replace string) []byte {
	data, err := event.MarshalCanonical(map[string]any{
		"find":    find,
		"replace": replace,
	})
	if err != nil {
		panic(err)
	}
	return data
}

// SearEvent builds a sear event on top of the given frontier.
func SearEvent(find, replace string, preds event.Frontier) event.Event {
	return event.MustNew(SearKind, SearPayload(find, replace), preds)
}

// Sear is a global search-and-replace reducer over Text state. Unlike
// kvstate it has no cheap syntactic commutativity predicate, so it
// probes by replaying both orders from a fixed base state — exactly the
// workload the engine's quadratic merge path exists to carry.
type Sear struct {
	// Base is the state commutation probes replay from. Tests set it
	// to the state at the merge boundary.
	Base Text

	reducer.UnresolvedResolver
}

type searMutation struct {
	Find    string `json:"find"`
	Replace string `json:"replace"`
}

// Apply implements reducer.Reducer.
func (s Sear) Apply(st reducer.State, ev event.Event) (reducer.State, error) {
	text, ok := st.(Text)
	if !ok {
		return nil, fmt.Errorf("sear: unexpected state type %T", st)
	}
	if ev.Kind != SearKind {
		return nil, reducer.Conflictf(ev.ID, "unsupported event kind %q", ev.Kind)
	}
	var mut searMutation
	if err := json.Unmarshal(ev.Payload, &mut); err != nil {
		return nil, fmt.Errorf("decode sear payload for %s: %w", ev.ID, err)
	}
	return Text(strings.ReplaceAll(string(text), mut.Find, mut.Replace)), nil
}

// Commute implements reducer.Reducer by replaying both orders from Base.
func (s Sear) Commute(a, b event.Event) (bool, error) {
	return reducer.CommuteByReplay(s, s.Base, a, b)
}
