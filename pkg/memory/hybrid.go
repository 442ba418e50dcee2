package memory

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Hybrid Refcount Manager
//
// Intrusive reference counting. The count lives in the object header,
// starts at 1 for the allocating owner, and is always manipulated
// atomically: a hybrid handle may cross task boundaries at any point, and
// always-atomic counts are cheaper than tracking an escape point per
// object.
//
// The count reaches zero exactly once. The last release runs the finalizer
// once and invalidates the header; retain on an invalidated handle is a
// use-after-free, never a resurrection.
//
// Cycle policy: no cycle detection. A reference cycle among hybrid objects
// is a permanent leak under the documented freed-at-zero semantics. Code
// that needs cycle safety should hold such structures in an arena or scope
// instead of sharing them hybrid-counted.

// HybridContext is the refcount manager.
type HybridContext struct {
	logger zerolog.Logger

	allocs    int64 // atomic
	retains   int64 // atomic
	releases  int64 // atomic
	finalized int64 // atomic
	uafCaught int64 // atomic
}

// NewHybridContext creates a hybrid refcount manager.
func NewHybridContext(logger zerolog.Logger) *HybridContext {
	return &HybridContext{logger: logger}
}

// Allocate returns a hybrid object with refcount 1.
func (ctx *HybridContext) Allocate(td *TypeDescriptor, scopeID uint64) *Object {
	obj := &Object{
		strategy: StrategyHybrid,
		typ:      td,
		bytes:    make([]byte, td.Size),
		scopeID:  scopeID,
		refcount: 1,
		seq:      nextAllocSeq(),
	}
	atomic.AddInt64(&ctx.allocs, 1)
	return obj
}

// Retain increments the owner count. Fails with ErrUseAfterFree if the
// count already dropped to zero; a dead object cannot be resurrected.
func (ctx *HybridContext) Retain(obj *Object) error {
	if obj.strategy != StrategyHybrid {
		return fmt.Errorf("%w: retain on %s object", ErrStrategyMismatch, obj.strategy)
	}

	for {
		rc := atomic.LoadInt64(&obj.refcount)
		if rc <= 0 {
			atomic.AddInt64(&ctx.uafCaught, 1)
			return fmt.Errorf("%w: retain on dead hybrid object (type %s)", ErrUseAfterFree, obj.typ.Name)
		}
		if atomic.CompareAndSwapInt64(&obj.refcount, rc, rc+1) {
			atomic.AddInt64(&ctx.retains, 1)
			return nil
		}
	}
}

// Release decrements the owner count. The release that reaches zero runs
// the finalizer exactly once and invalidates the header.
func (ctx *HybridContext) Release(obj *Object) error {
	if obj.strategy != StrategyHybrid {
		return fmt.Errorf("%w: release on %s object", ErrStrategyMismatch, obj.strategy)
	}

	for {
		rc := atomic.LoadInt64(&obj.refcount)
		if rc <= 0 {
			atomic.AddInt64(&ctx.uafCaught, 1)
			return fmt.Errorf("%w: release on dead hybrid object (type %s)", ErrUseAfterFree, obj.typ.Name)
		}
		if !atomic.CompareAndSwapInt64(&obj.refcount, rc, rc-1) {
			continue
		}
		atomic.AddInt64(&ctx.releases, 1)
		if rc == 1 {
			// Only the releaser that took the count 1->0 gets here.
			obj.finalize()
			atomic.AddInt64(&ctx.finalized, 1)
			ctx.logger.Debug().
				Str("type", obj.typ.Name).
				Uint64("seq", obj.seq).
				Msg("hybrid finalized")
		}
		return nil
	}
}

// Stats returns hybrid refcount counters.
func (ctx *HybridContext) Stats() HybridStats {
	return HybridStats{
		Allocs:       atomic.LoadInt64(&ctx.allocs),
		Retains:      atomic.LoadInt64(&ctx.retains),
		Releases:     atomic.LoadInt64(&ctx.releases),
		Finalized:    atomic.LoadInt64(&ctx.finalized),
		UseAfterFree: atomic.LoadInt64(&ctx.uafCaught),
	}
}
