// Package reducer defines the semantics contract the embedding
// application supplies to the engine: how an event mutates state,
// whether two events commute, and how non-commuting pairs may be
// ordered.
//
// The engine is generic over this contract. It never interprets
// payloads itself; every domain decision flows through a Reducer the
// caller passes in at working-copy construction time.
package reducer
