// Package harness runs conformance scenarios against the engine.
//
// A scenario is a YAML file describing branches of commits, the merges
// to attempt, and the expected outcome. The harness executes it against
// the reference key-value reducer and produces a deterministic trace:
// event IDs are aliased (e1, e2, ...) in admission order so traces are
// stable, readable, and comparable against golden files.
//
// Scenario files are validated twice: structurally against an embedded
// CUE schema, and again by the strict YAML decoder (unknown fields are
// rejected, so typos fail loudly instead of silently passing).
package harness
