package reducer

import (
	"sync/atomic"

	"github.com/foldvc/foldvc/internal/event"
)

// Counts is a snapshot of reducer call volumes.
type Counts struct {
	Applies  uint64
	Commutes uint64
	Resolves uint64
}

// Counting wraps a Reducer and counts every contract call. Used to
// verify the engine's documented scaling behavior (the pairwise commute
// evaluation is quadratic) and in benchmarks.
//
// Thread-safe: counters are atomic, so the wrapper is safe under the
// engine's parallel commute evaluation.
type Counting struct {
	inner    Reducer
	applies  atomic.Uint64
	commutes atomic.Uint64
	resolves atomic.Uint64
}

// NewCounting wraps r with call counting.
func NewCounting(r Reducer) *Counting {
	return &Counting{inner: r}
}

// Apply implements Reducer.
func (c *Counting) Apply(st State, ev event.Event) (State, error) {
	c.applies.Add(1)
	return c.inner.Apply(st, ev)
}

// Commute implements Reducer.
func (c *Counting) Commute(a, b event.Event) (bool, error) {
	c.commutes.Add(1)
	return c.inner.Commute(a, b)
}

// Resolve implements Reducer.
func (c *Counting) Resolve(a, b event.Event) (Order, error) {
	c.resolves.Add(1)
	return c.inner.Resolve(a, b)
}

// Counts returns the current call volumes.
func (c *Counting) Counts() Counts {
	return Counts{
		Applies:  c.applies.Load(),
		Commutes: c.commutes.Load(),
		Resolves: c.resolves.Load(),
	}
}

// Reset zeroes all counters.
func (c *Counting) Reset() {
	c.applies.Store(0)
	c.commutes.Store(0)
	c.resolves.Store(0)
}
