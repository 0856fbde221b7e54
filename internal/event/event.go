package event

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-derived identity.
// The version suffix enables future hash/encoding migration: events built
// under a new scheme simply hash under a new domain and never collide
// with the old population.
const (
	DomainEvent = "foldvc/event/v1"
	DomainMerge = "foldvc/merge/v1"
)

// KindMerge marks events synthesized by the merge engine. Their payload
// is a canonical-JSON merge record (see internal/merge) rather than a
// domain mutation.
const KindMerge = "foldvc/merge"

// ID is a content-derived event identifier: lowercase hex SHA-256 over
// the canonical encoding of the event's kind, payload and predecessor
// set. IDs compare with plain < which makes "ascending by event id" a
// well-defined canonical tie-break everywhere.
type ID string

// Event is an immutable mutation record.
//
// INVARIANTS:
//   - ID always equals ComputeID(Kind, Payload, Predecessors)
//   - Predecessors is sorted ascending and duplicate-free
//   - empty Predecessors only for root events
//
// Construct events through New; hand-built Events bypass the identity
// invariant and will be rejected at graph admission.
type Event struct {
	ID           ID
	Kind         string
	Payload      []byte
	Predecessors []ID
}

// New builds an event, normalizing the predecessor set and computing the
// content-derived ID.
func New(kind string, payload []byte, predecessors []ID) (Event, error) {
	preds := normalizeIDs(predecessors)
	id, err := ComputeID(kind, payload, preds)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:           id,
		Kind:         kind,
		Payload:      append([]byte(nil), payload...),
		Predecessors: preds,
	}, nil
}

// ComputeID derives the canonical identifier for an event.
// The payload travels as base64 inside the canonical object because
// canonical JSON has no raw-bytes type.
func ComputeID(kind string, payload []byte, predecessors []ID) (ID, error) {
	preds := normalizeIDs(predecessors)
	obj := map[string]any{
		"kind":         kind,
		"payload":      base64.StdEncoding.EncodeToString(payload),
		"predecessors": idStrings(preds),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("compute event id: %w", err)
	}
	domain := DomainEvent
	if kind == KindMerge {
		domain = DomainMerge
	}
	return ID(hashWithDomain(domain, canonical)), nil
}

// MustNew is like New but panics on error. Use only in tests or when
// inputs are known to be valid.
func MustNew(kind string, payload []byte, predecessors []ID) Event {
	ev, err := New(kind, payload, predecessors)
	if err != nil {
		panic(err)
	}
	return ev
}

// IsRoot reports whether the event has no causal predecessors.
func (e Event) IsRoot() bool {
	return len(e.Predecessors) == 0
}

// Clone returns a deep copy. Events are treated as immutable everywhere;
// Clone exists for the few boundaries (snapshots, diagnostics) that hand
// events to callers who might hold them across graph mutations.
func (e Event) Clone() Event {
	return Event{
		ID:           e.ID,
		Kind:         e.Kind,
		Payload:      append([]byte(nil), e.Payload...),
		Predecessors: append([]ID(nil), e.Predecessors...),
	}
}

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func idStrings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
