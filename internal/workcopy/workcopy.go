// Package workcopy binds a branch name, its frontier and a cached
// materialized state into the mutable working surface of the engine.
// The graph underneath stays append-only; all "change" lives here.
package workcopy

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/foldvc/foldvc/internal/event"
	"github.com/foldvc/foldvc/internal/graph"
	"github.com/foldvc/foldvc/internal/merge"
	"github.com/foldvc/foldvc/internal/reducer"
)

// Sentinel errors returned by working-copy operations.
var (
	// ErrNoOp reports a commit whose event left the state unchanged.
	// Such events are elided: nothing enters the graph.
	ErrNoOp = errors.New("event does not change state")

	// ErrClosed reports use after Close.
	ErrClosed = errors.New("working copy is closed")
)

const defaultCacheSize = 128

// Copy is a working copy: one branch, one frontier, one live state.
//
// One mutating operation runs at a time; the mutex serializes Commit,
// Merge, Checkout and Close. Accessors return copies, so readers never
// observe a mutation in progress.
type Copy struct {
	mu      sync.Mutex
	graph   *graph.Graph
	reducer reducer.Reducer
	root    reducer.State
	engine  *merge.Engine

	branch   string
	frontier event.Frontier
	state    reducer.State
	closed   bool

	// cache maps frontier keys to materialized states. The root state
	// is pinned separately; eviction can never lose it.
	cache *lru.Cache[string, reducer.State]

	session uuid.UUID
	logger  *slog.Logger
}

// Option configures a working copy.
type Option func(*config)

type config struct {
	branch    string
	cacheSize int
	workers   int
	logger    *slog.Logger
}

// WithBranch selects the branch the copy tracks. Default "main".
func WithBranch(name string) Option {
	return func(c *config) { c.branch = name }
}

// WithCacheSize bounds the frontier-state cache.
func WithCacheSize(n int) Option {
	return func(c *config) { c.cacheSize = n }
}

// WithMergeWorkers caps the merge engine's commutation pool.
func WithMergeWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithLogger routes working-copy logs to the given logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Open attaches a working copy to a graph. If the branch already exists
// its frontier is adopted and the state materialized; otherwise the
// branch is created at the root.
func Open(g *graph.Graph, r reducer.Reducer, root reducer.State, opts ...Option) (*Copy, error) {
	cfg := config{
		branch:    "main",
		cacheSize: defaultCacheSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	cache, err := lru.New[string, reducer.State](cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("open working copy: %w", err)
	}
	session, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("open working copy: session id: %w", err)
	}

	w := &Copy{
		graph:   g,
		reducer: r,
		root:    root.Clone(),
		branch:  cfg.branch,
		cache:   cache,
		session: session,
		logger:  cfg.logger.With("session", session.String(), "branch", cfg.branch),
	}
	w.engine = merge.NewEngine(g, r, materializer{w},
		merge.WithLogger(w.logger),
		merge.WithWorkers(cfg.workers))

	frontier, ok := g.Branch(cfg.branch)
	if !ok {
		frontier = event.NewFrontier()
		if err := g.SetBranch(cfg.branch, frontier); err != nil {
			return nil, fmt.Errorf("open working copy: %w", err)
		}
	}
	state, err := w.stateAt(frontier)
	if err != nil {
		return nil, fmt.Errorf("open working copy: %w", err)
	}
	w.frontier = frontier
	w.state = state

	w.logger.Debug("working copy opened",
		"frontier", frontier.Key(),
		"events", g.Len())
	return w, nil
}

// Session returns the copy's correlation ID.
func (w *Copy) Session() uuid.UUID { return w.session }

// Branch returns the tracked branch name.
func (w *Copy) Branch() string { return w.branch }

// Frontier returns the current frontier.
func (w *Copy) Frontier() event.Frontier {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frontier.Clone()
}

// State returns a copy of the current materialized state.
func (w *Copy) State() reducer.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Clone()
}

// Commit builds an event on top of the current frontier, trial-applies
// it, and admits it. The frontier and branch pointer advance to the new
// event. Failures leave graph, frontier and state untouched; an event
// that changes nothing is elided with ErrNoOp.
func (w *Copy) Commit(kind string, payload []byte) (event.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return event.Event{}, ErrClosed
	}

	ev, err := event.New(kind, payload, w.frontier)
	if err != nil {
		return event.Event{}, fmt.Errorf("commit: %w", err)
	}
	next, err := w.reducer.Apply(w.state, ev)
	if err != nil {
		return event.Event{}, fmt.Errorf("commit %s: %w", ev.ID, err)
	}
	if next.Equal(w.state) {
		return event.Event{}, fmt.Errorf("commit %s: %w", ev.ID, ErrNoOp)
	}
	if err := w.graph.Admit(ev); err != nil {
		return event.Event{}, fmt.Errorf("commit: %w", err)
	}

	w.frontier = event.NewFrontier(ev.ID)
	w.state = next
	w.cache.Add(w.frontier.Key(), next)
	if err := w.graph.SetBranch(w.branch, w.frontier); err != nil {
		// The event was just admitted; its ID cannot be unknown.
		return event.Event{}, &graph.CorruptionError{Op: "commit", Detail: err.Error()}
	}

	w.logger.Debug("event committed", "event", string(ev.ID), "kind", kind)
	return ev, nil
}

// Checkout moves the working copy to an arbitrary frontier,
// rematerializing state from the nearest cached ancestor. The branch
// pointer does not move until the next Commit or Merge.
func (w *Copy) Checkout(f event.Frontier) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	st, err := w.stateAt(f)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	w.frontier = f.Clone()
	w.state = st
	w.logger.Debug("checked out", "frontier", f.Key())
	return nil
}

// Merge folds the given frontiers into the working copy's own and
// advances to the merged frontier. Conflicts surface as
// *merge.ConflictError with the copy unchanged.
func (w *Copy) Merge(frontiers ...event.Frontier) (merge.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return merge.Result{}, ErrClosed
	}

	inputs := make([]event.Frontier, 0, len(frontiers)+1)
	inputs = append(inputs, w.frontier)
	inputs = append(inputs, frontiers...)
	res, err := w.engine.Merge(inputs...)
	if err != nil {
		return merge.Result{}, err
	}

	w.frontier = res.Frontier.Clone()
	w.state = res.State
	w.cache.Add(w.frontier.Key(), res.State)
	if err := w.graph.SetBranch(w.branch, w.frontier); err != nil {
		return merge.Result{}, &graph.CorruptionError{Op: "merge", Detail: err.Error()}
	}
	return res, nil
}

// MergeBranch is Merge addressed by branch name.
func (w *Copy) MergeBranch(name string) (merge.Result, error) {
	f, ok := w.graph.Branch(name)
	if !ok {
		return merge.Result{}, fmt.Errorf("merge branch %q: %w", name, graph.ErrUnknownEvent)
	}
	return w.Merge(f)
}

// Close detaches the copy and returns the final graph snapshot for the
// persistence layer. Further operations fail with ErrClosed.
func (w *Copy) Close() (*graph.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	w.closed = true
	w.cache.Purge()
	w.logger.Debug("working copy closed", "frontier", w.frontier.Key())
	return w.graph.Snapshot(), nil
}

// materializer exposes the copy's cache-aware state lookup to the merge
// engine. It must only be called while the copy's mutex is held, which
// is the case for engine calls made from Merge.
type materializer struct {
	w *Copy
}

func (m materializer) StateAt(f event.Frontier) (reducer.State, error) {
	return m.w.stateAt(f)
}

// stateAt materializes the state at a frontier. Resolution order: the
// cache, then a replay from the best cached ancestor, then a replay
// from the root. Caller holds the mutex (or the copy is still opening).
func (w *Copy) stateAt(f event.Frontier) (reducer.State, error) {
	key := f.Key()
	if key == "" {
		return w.root.Clone(), nil
	}
	if st, ok := w.cache.Get(key); ok {
		return st, nil
	}

	target, err := w.graph.Closure(f)
	if err != nil {
		return nil, err
	}
	order, err := merge.ReplayOrder(w.graph, f)
	if err != nil {
		return nil, err
	}

	base := w.root
	var skip map[event.ID]struct{}
	bestLen := 0
	for _, cachedKey := range w.cache.Keys() {
		cl, ok := w.cachedClosure(cachedKey, target)
		if !ok || len(cl) <= bestLen {
			continue
		}
		st, ok := w.cache.Peek(cachedKey)
		if !ok {
			continue
		}
		base = st
		skip = cl
		bestLen = len(cl)
	}

	st, err := merge.Replay(w.graph, w.reducer, base, order, skip)
	if err != nil {
		return nil, err
	}
	w.cache.Add(key, st)
	return st, nil
}

// cachedClosure resolves a cached frontier key to its closure, if that
// closure is fully contained in target (i.e. the cached state is an
// ancestor of the one being built).
func (w *Copy) cachedClosure(key string, target map[event.ID]struct{}) (map[event.ID]struct{}, bool) {
	f := parseFrontierKey(key)
	cl, err := w.graph.Closure(f)
	if err != nil {
		return nil, false
	}
	for id := range cl {
		if _, ok := target[id]; !ok {
			return nil, false
		}
	}
	return cl, true
}

func parseFrontierKey(key string) event.Frontier {
	if key == "" {
		return event.NewFrontier()
	}
	parts := strings.Split(key, ",")
	ids := make([]event.ID, len(parts))
	for i, p := range parts {
		ids[i] = event.ID(p)
	}
	return event.NewFrontier(ids...)
}
