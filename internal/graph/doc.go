// Package graph maintains the append-only causal event graph: every
// known event, the predecessor relation between them, and the named
// branch heads.
//
// Events live in an arena keyed by their content-derived ID and refer to
// each other only through IDs, never pointers. Admission enforces causal
// completeness (all predecessors present first), so the arena is acyclic
// by construction; the explicit cycle checks in traversal exist to catch
// corruption, and a detected cycle is fatal, not a recoverable error.
package graph
