package memory

import (
	"sync/atomic"
)

// Object Header & Strategy Tag
//
// Every allocation made through the Allocator carries one header. The
// strategy tag is fixed at allocation time and never changes for the
// object's lifetime: an object never transitions from one discipline to
// another. Mixing disciplines happens only by copying the payload into a
// fresh allocation of the destination's strategy.
//
// Header layout (per live allocation):
//   strategy   - allocation discipline, immutable
//   refcount   - active owner count, hybrid objects only (atomic)
//   poolID     - owning pool, pooled objects only
//   arenaID    - owning arena, arena objects only
//   scopeID    - enclosing scope at allocation time
//   typ        - shared TypeDescriptor
//   state      - live / freed (atomic, transitions live->freed exactly once)

// Strategy is the allocation discipline assigned to an object at creation.
type Strategy uint8

const (
	StrategyManual Strategy = iota + 1
	StrategyAutomatic
	StrategyHybrid
	StrategyPooled
	StrategyArena
)

func (s Strategy) String() string {
	switch s {
	case StrategyManual:
		return "manual"
	case StrategyAutomatic:
		return "automatic"
	case StrategyHybrid:
		return "hybrid"
	case StrategyPooled:
		return "pooled"
	case StrategyArena:
		return "arena"
	default:
		return "unknown"
	}
}

// Object state values.
const (
	stateLive int32 = iota
	stateFreed
)

// Object is a header-tagged allocation handle. Callers receive *Object from
// the Allocator and hand it back for release; the payload is reachable
// through Bytes while the object is live.
type Object struct {
	strategy Strategy
	typ      *TypeDescriptor
	bytes    []byte

	scopeID uint64
	arenaID ArenaID
	poolID  PoolID
	slot    int

	refcount int64 // hybrid only, atomic
	state    int32 // atomic, stateLive -> stateFreed exactly once
	shared   int32 // atomic flag, set when handed to a spawned task

	seq uint64 // allocation sequence, for debug registries and leak reports
}

// Strategy returns the immutable allocation discipline of the object.
func (o *Object) Strategy() Strategy {
	return o.strategy
}

// Type returns the shared type descriptor.
func (o *Object) Type() *TypeDescriptor {
	return o.typ
}

// Bytes returns the payload storage. Nil once the object has been freed.
func (o *Object) Bytes() []byte {
	if !o.Live() {
		return nil
	}
	return o.bytes
}

// Size returns the payload size in bytes.
func (o *Object) Size() int {
	return o.typ.Size
}

// ScopeID returns the scope the object was allocated under.
func (o *Object) ScopeID() uint64 {
	return o.scopeID
}

// Refcount returns the current owner count. Meaningful for hybrid objects
// only; zero for every other strategy.
func (o *Object) Refcount() int64 {
	return atomic.LoadInt64(&o.refcount)
}

// Live reports whether the object has not been freed yet.
func (o *Object) Live() bool {
	return atomic.LoadInt32(&o.state) == stateLive
}

// Shared reports whether the object was marked as crossing a task boundary.
func (o *Object) Shared() bool {
	return atomic.LoadInt32(&o.shared) == 1
}

// MarkShared flags the object as visible to more than one task. For hybrid
// objects refcount operations are atomic regardless, so the mark is
// diagnostic: it records that the handle crossed a spawn boundary.
func (o *Object) MarkShared() {
	atomic.StoreInt32(&o.shared, 1)
}

// invalidate transitions the header live -> freed. Returns false if the
// object was already freed, so finalization runs at most once.
func (o *Object) invalidate() bool {
	return atomic.CompareAndSwapInt32(&o.state, stateLive, stateFreed)
}

// finalize runs the type's finalizer (if any) against the still-live object,
// then invalidates the header and drops the payload. The caller must hold
// whatever lock protects the object's manager; finalize itself only
// guarantees the live->freed transition happens once.
func (o *Object) finalize() bool {
	if !o.Live() {
		return false
	}
	if fin := o.typ.Finalizer; fin != nil {
		fin(o)
	}
	if !o.invalidate() {
		return false
	}
	o.bytes = nil
	return true
}
