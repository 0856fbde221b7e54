package merge

import (
	"encoding/json"
	"fmt"

	"github.com/foldvc/foldvc/internal/event"
	"github.com/foldvc/foldvc/internal/graph"
)

// ResolvedPair records one reducer decision: First was applied before
// Second. Pairs are stored in the direction they were applied, not in
// ID order.
type ResolvedPair struct {
	First  event.ID `json:"first"`
	Second event.ID `json:"second"`
}

// Record is the structured payload of a merge event. It captures
// everything a replay needs to reproduce the merged state without
// repeating the pairwise analysis: the boundary the divergent events
// were folded onto, their resolved total order, and the individual
// conflict decisions (for diagnostics; the order already subsumes them).
type Record struct {
	Boundary []event.ID     `json:"boundary"`
	Order    []event.ID     `json:"order"`
	Resolved []ResolvedPair `json:"resolved"`
}

// encodeRecord renders a Record as canonical JSON. Equal records always
// produce byte-identical payloads, which is what makes merge event IDs
// deterministic.
func encodeRecord(rec Record) ([]byte, error) {
	resolved := make([]any, len(rec.Resolved))
	for i, p := range rec.Resolved {
		resolved[i] = map[string]any{
			"first":  string(p.First),
			"second": string(p.Second),
		}
	}
	return event.MarshalCanonical(map[string]any{
		"boundary": idStrings(rec.Boundary),
		"order":    idStrings(rec.Order),
		"resolved": resolved,
	})
}

// DecodeRecord parses a merge event's payload.
func DecodeRecord(ev event.Event) (Record, error) {
	if ev.Kind != event.KindMerge {
		return Record{}, fmt.Errorf("decode merge record: %s has kind %q, not a merge event", ev.ID, ev.Kind)
	}
	var rec Record
	if err := json.Unmarshal(ev.Payload, &rec); err != nil {
		return Record{}, fmt.Errorf("decode merge record for %s: %w", ev.ID, err)
	}
	return rec, nil
}

// Report is the human-facing decoding of a merge event.
type Report struct {
	MergeID  event.ID
	Inputs   event.Frontier // the frontiers that were merged (the event's predecessors)
	Boundary event.Frontier
	Order    []event.ID
	Resolved []ResolvedPair
}

// Explain decodes an admitted merge event into a Report. It answers the
// diagnostic question "why is the state what it is": the exact order
// divergent events were folded in, and which pairs needed a reducer
// decision.
func Explain(g *graph.Graph, id event.ID) (Report, error) {
	ev, ok := g.Get(id)
	if !ok {
		return Report{}, fmt.Errorf("explain %s: %w", id, graph.ErrUnknownEvent)
	}
	rec, err := DecodeRecord(ev)
	if err != nil {
		return Report{}, err
	}
	return Report{
		MergeID:  ev.ID,
		Inputs:   event.NewFrontier(ev.Predecessors...),
		Boundary: event.NewFrontier(rec.Boundary...),
		Order:    rec.Order,
		Resolved: rec.Resolved,
	}, nil
}

func idStrings(ids []event.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
