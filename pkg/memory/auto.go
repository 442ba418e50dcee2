package memory

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Automatic Tier - deterministic scope-exit release
//
// Every automatic allocation is registered with its enclosing scope and
// released, finalizer first, in reverse registration order when the scope
// exits. This is the scope-exit design: no tracing collector, no collection
// latency, and an object is reclaimed exactly when its scope ends. An
// automatic object is never reclaimed while its scope is open, and
// reclamation is bounded by scope exit.
//
// The trade-off is the documented one: cyclic automatic references within a
// scope are harmless (the whole scope dies together), but an automatic
// reference escaping its scope is a caller error the static escape check
// rejects where it can.

// AutoContext is the automatic-tier allocator.
type AutoContext struct {
	logger zerolog.Logger

	allocs int64 // atomic
}

// NewAutoContext creates an automatic-tier allocator.
func NewAutoContext(logger zerolog.Logger) *AutoContext {
	return &AutoContext{logger: logger}
}

// Allocate returns an automatic object registered with the given scope for
// release when the scope exits.
func (ctx *AutoContext) Allocate(td *TypeDescriptor, s *Scope) *Object {
	obj := &Object{
		strategy: StrategyAutomatic,
		typ:      td,
		bytes:    make([]byte, td.Size),
		scopeID:  s.ID,
		seq:      nextAllocSeq(),
	}
	s.registerAuto(obj)
	atomic.AddInt64(&ctx.allocs, 1)
	return obj
}

// Drop releases an automatic object ahead of scope exit (the facade's
// release_or_drop path). The scope-exit sweep skips already-freed entries.
func (ctx *AutoContext) Drop(obj *Object) {
	obj.finalize()
}

// Stats returns automatic-tier counters; released counts come from the
// scope context that runs the exits.
func (ctx *AutoContext) Stats(scopes *ScopeContext) AutoStats {
	return AutoStats{
		Allocs:   atomic.LoadInt64(&ctx.allocs),
		Released: scopes.AutoReleased(),
	}
}
