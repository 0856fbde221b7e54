// Package event defines the immutable mutation record at the heart of
// foldvc: an opaque payload, the set of causal predecessor IDs, and a
// content-derived identifier computed over both.
//
// Identity is canonical: two events built from the same payload and the
// same predecessor set hash to the same ID, no matter where or when they
// were built. Everything downstream (graph deduplication, merge
// determinism, content-addressed merge events) depends on this property,
// which is why the package also owns the canonical JSON encoder used for
// all hashing.
package event
