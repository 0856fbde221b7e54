// Package kvstate is the reference reducer: a flat string key-value map
// mutated by set/del events. It is what the conformance harness, the
// CLI demos and most engine tests run against, and it doubles as the
// worked example for writing a production reducer.
package kvstate

import (
	"encoding/json"
	"fmt"

	"github.com/foldvc/foldvc/internal/event"
	"github.com/foldvc/foldvc/internal/reducer"
)

// Kind tags events carrying kvstate payloads.
const Kind = "kv"

// Payload operations.
const (
	OpSet = "set"
	OpDel = "del"
)

// Map is the reduced state: a plain key-value map.
type Map map[string]string

// NewMap copies the given map into a Map, never aliasing the input.
func NewMap(m map[string]string) Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Clone implements reducer.State.
func (m Map) Clone() reducer.State {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal implements reducer.State.
func (m Map) Equal(other reducer.State) bool {
	o, ok := other.(Map)
	if !ok || len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Mutation is the decoded payload of a kvstate event.
type Mutation struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Payload encodes a mutation canonically, so equal mutations always
// produce byte-identical payloads (and therefore identical event IDs).
func Payload(op, key, value string) []byte {
	obj := map[string]any{"key": key, "op": op}
	if op == OpSet {
		obj["value"] = value
	}
	data, err := event.MarshalCanonical(obj)
	if err != nil {
		// Only strings involved; the canonical encoder cannot reject them.
		panic(err)
	}
	return data
}

// Set builds a set(key, value) event on top of the given frontier.
func Set(key, value string, preds event.Frontier) (event.Event, error) {
	return event.New(Kind, Payload(OpSet, key, value), preds)
}

// Del builds a del(key) event on top of the given frontier.
func Del(key string, preds event.Frontier) (event.Event, error) {
	return event.New(Kind, Payload(OpDel, key, ""), preds)
}

// Decode parses a kvstate payload.
func Decode(ev event.Event) (Mutation, error) {
	if ev.Kind != Kind {
		return Mutation{}, reducer.Conflictf(ev.ID, "unsupported event kind %q", ev.Kind)
	}
	var mut Mutation
	if err := json.Unmarshal(ev.Payload, &mut); err != nil {
		return Mutation{}, fmt.Errorf("decode kv payload for %s: %w", ev.ID, err)
	}
	switch mut.Op {
	case OpSet, OpDel:
	default:
		return Mutation{}, reducer.Conflictf(ev.ID, "unknown op %q", mut.Op)
	}
	if mut.Key == "" {
		return Mutation{}, reducer.Conflictf(ev.ID, "empty key")
	}
	return mut, nil
}

// Reducer applies kvstate mutations.
//
// Commutativity is syntactic: mutations on different keys always
// commute; on the same key only identical writes or two deletes do.
// That is conservative (two sets of the same value to the same key from
// different events never arise — identical payloads and predecessors
// collapse to one ID) and cheap.
type Reducer struct {
	// LWW enables automatic conflict resolution: the event with the
	// lexicographically larger ID is applied last and wins. When
	// false, conflicting pairs are left to manual resolution.
	LWW bool
}

// Apply implements reducer.Reducer.
func (r Reducer) Apply(st reducer.State, ev event.Event) (reducer.State, error) {
	m, ok := st.(Map)
	if !ok {
		return nil, fmt.Errorf("kvstate: unexpected state type %T", st)
	}
	mut, err := Decode(ev)
	if err != nil {
		return nil, err
	}
	next := m.Clone().(Map)
	switch mut.Op {
	case OpSet:
		next[mut.Key] = mut.Value
	case OpDel:
		delete(next, mut.Key)
	}
	return next, nil
}

// Commute implements reducer.Reducer.
func (r Reducer) Commute(a, b event.Event) (bool, error) {
	ma, err := Decode(a)
	if err != nil {
		return false, err
	}
	mb, err := Decode(b)
	if err != nil {
		return false, err
	}
	if ma.Key != mb.Key {
		return true, nil
	}
	if ma.Op == OpDel && mb.Op == OpDel {
		return true, nil
	}
	if ma.Op == OpSet && mb.Op == OpSet && ma.Value == mb.Value {
		return true, nil
	}
	return false, nil
}

// Resolve implements reducer.Reducer.
func (r Reducer) Resolve(a, b event.Event) (reducer.Order, error) {
	if !r.LWW {
		return reducer.Unresolved, nil
	}
	return reducer.LexOrder(a, b), nil
}
