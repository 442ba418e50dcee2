package memory

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Arena Manager - stack-discipline region allocation
//
// An arena is tied to one scope. Allocation is O(1): bump the region
// watermark and initialize the header. Non-trivial objects are recorded in
// allocation order so close can run their finalizers in reverse; trivial
// objects carry no per-object record and the whole region is released in
// one step regardless of how many there were.
//
// Arenas nest: an inner scope's arena is a child of the enclosing one.
// Closing a parent implicitly closes its un-closed children in reverse
// creation order, so teardown follows stack discipline even when an inner
// scope exits abnormally.
//
// Arenas are not shared across concurrent tasks: each task that opens a
// scope owns its own arena, so no locking happens on the allocation path.

// ArenaID uniquely identifies an arena.
type ArenaID uint64

var nextArenaID uint64

// Arena owns a chunked bump region and the objects carved out of it.
type Arena struct {
	ID      ArenaID
	ScopeID uint64

	parent   *Arena
	children []*Arena

	region     *region
	finalizers []*Object // non-trivial objects, allocation order
	allocCount int
	closed     bool
}

// Closed reports whether the arena has been torn down.
func (a *Arena) Closed() bool {
	return a.closed
}

// AllocCount returns the number of objects allocated from the arena.
func (a *Arena) AllocCount() int {
	return a.allocCount
}

// Watermark returns total bytes bumped in the arena's region.
func (a *Arena) Watermark() int {
	return a.region.watermark()
}

// ArenaContext manages the arena hierarchy.
type ArenaContext struct {
	chunkSize int
	logger    zerolog.Logger

	mu     sync.Mutex
	arenas map[ArenaID]*Arena

	opens  int64 // atomic
	closes int64 // atomic
	allocs int64 // atomic
}

// NewArenaContext creates an arena manager.
func NewArenaContext(chunkSize int, logger zerolog.Logger) *ArenaContext {
	return &ArenaContext{
		chunkSize: chunkSize,
		logger:    logger,
		arenas:    make(map[ArenaID]*Arena),
	}
}

// Open creates an arena owned by the given scope. A non-nil parent makes
// the new arena a child region that the parent will close implicitly.
func (ctx *ArenaContext) Open(scopeID uint64, parent *Arena) *Arena {
	a := &Arena{
		ID:      ArenaID(atomic.AddUint64(&nextArenaID, 1)),
		ScopeID: scopeID,
		parent:  parent,
		region:  newRegion(ctx.chunkSize),
	}
	if parent != nil {
		parent.children = append(parent.children, a)
	}

	ctx.mu.Lock()
	ctx.arenas[a.ID] = a
	ctx.mu.Unlock()
	atomic.AddInt64(&ctx.opens, 1)

	ctx.logger.Debug().
		Uint64("arena", uint64(a.ID)).
		Uint64("scope", scopeID).
		Msg("arena open")
	return a
}

// Allocate bumps the arena watermark and returns a header-tagged object.
// Non-trivial types are registered for finalization at close.
func (ctx *ArenaContext) Allocate(a *Arena, td *TypeDescriptor) (*Object, error) {
	if a.closed {
		return nil, fmt.Errorf("%w: arena %d", ErrArenaClosed, a.ID)
	}

	obj := &Object{
		strategy: StrategyArena,
		typ:      td,
		bytes:    a.region.alloc(td.Size, td.Align),
		scopeID:  a.ScopeID,
		arenaID:  a.ID,
		seq:      nextAllocSeq(),
	}
	a.allocCount++
	if !td.Trivial() {
		a.finalizers = append(a.finalizers, obj)
	}
	atomic.AddInt64(&ctx.allocs, 1)
	return obj, nil
}

// Close tears the arena down: un-closed children first in reverse creation
// order, then registered finalizers in reverse allocation order, then the
// whole region in one step.
func (ctx *ArenaContext) Close(a *Arena) error {
	if a.closed {
		return fmt.Errorf("%w: arena %d", ErrArenaClosed, a.ID)
	}
	a.closed = true

	for i := len(a.children) - 1; i >= 0; i-- {
		if !a.children[i].closed {
			if err := ctx.Close(a.children[i]); err != nil {
				return err
			}
		}
	}

	for i := len(a.finalizers) - 1; i >= 0; i-- {
		a.finalizers[i].finalize()
	}
	a.finalizers = nil

	// Trivial objects get no per-object teardown; invalidating the region
	// retires them all at once.
	a.region.release()

	ctx.mu.Lock()
	delete(ctx.arenas, a.ID)
	ctx.mu.Unlock()
	atomic.AddInt64(&ctx.closes, 1)

	ctx.logger.Debug().
		Uint64("arena", uint64(a.ID)).
		Int("objects", a.allocCount).
		Msg("arena close")
	return nil
}

// Lookup returns a live arena by ID.
func (ctx *ArenaContext) Lookup(id ArenaID) (*Arena, bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	a, ok := ctx.arenas[id]
	return a, ok
}

// OpenCount returns the number of arenas not yet closed.
func (ctx *ArenaContext) OpenCount() int {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return len(ctx.arenas)
}

// Stats returns arena counters.
func (ctx *ArenaContext) Stats() ArenaStats {
	return ArenaStats{
		Opens:  atomic.LoadInt64(&ctx.opens),
		Closes: atomic.LoadInt64(&ctx.closes),
		Allocs: atomic.LoadInt64(&ctx.allocs),
		Open:   int64(ctx.OpenCount()),
	}
}
