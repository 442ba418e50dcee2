package memory

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Manual Allocator Adapter
//
// Direct pass-through allocation with explicit deallocate. The only
// bookkeeping is a debug-mode registry mapping live handles to their
// allocation site, used for double-free, foreign-pointer and leak
// detection. With debug off there is no registry and no check: a double
// deallocate is undefined-behavior-equivalent and goes unreported. That
// downgrade is the explicit Config.Debug switch, never a default.

// allocSeq is the global allocation sequence, shared by all managers so
// leak reports sort in allocation order.
var allocSeq uint64

func nextAllocSeq() uint64 {
	return atomic.AddUint64(&allocSeq, 1)
}

// ManualContext is the manual allocation adapter.
type ManualContext struct {
	debug  bool
	logger zerolog.Logger

	mu   sync.Mutex
	live map[*Object]string // handle -> allocation site, debug only

	allocs      int64 // atomic
	frees       int64 // atomic
	doubleFrees int64 // atomic
}

// NewManualContext creates a manual adapter. With debug on, every live
// handle is tracked against its allocation site.
func NewManualContext(debug bool, logger zerolog.Logger) *ManualContext {
	ctx := &ManualContext{
		debug:  debug,
		logger: logger,
	}
	if debug {
		ctx.live = make(map[*Object]string)
	}
	return ctx
}

// Allocate returns a manual-strategy object. The caller owns the handle and
// must call Deallocate exactly once.
func (ctx *ManualContext) Allocate(td *TypeDescriptor, scopeID uint64, site string) *Object {
	obj := &Object{
		strategy: StrategyManual,
		typ:      td,
		bytes:    make([]byte, td.Size),
		scopeID:  scopeID,
		seq:      nextAllocSeq(),
	}

	atomic.AddInt64(&ctx.allocs, 1)
	if ctx.debug {
		ctx.mu.Lock()
		ctx.live[obj] = site
		ctx.mu.Unlock()
		ctx.logger.Debug().
			Str("type", td.Name).
			Str("site", site).
			Uint64("seq", obj.seq).
			Msg("manual allocate")
	}
	return obj
}

// Deallocate frees a manual handle, running the finalizer. In debug mode an
// already-freed or foreign handle fails with ErrDoubleFree and the object
// is left untouched.
func (ctx *ManualContext) Deallocate(obj *Object) error {
	if obj.strategy != StrategyManual {
		return fmt.Errorf("%w: deallocate on %s object", ErrStrategyMismatch, obj.strategy)
	}

	if ctx.debug {
		ctx.mu.Lock()
		site, ok := ctx.live[obj]
		if !ok {
			ctx.mu.Unlock()
			atomic.AddInt64(&ctx.doubleFrees, 1)
			return fmt.Errorf("%w: handle seq %d (type %s)", ErrDoubleFree, obj.seq, obj.typ.Name)
		}
		delete(ctx.live, obj)
		ctx.mu.Unlock()
		ctx.logger.Debug().
			Str("type", obj.typ.Name).
			Str("site", site).
			Msg("manual deallocate")
	}

	obj.finalize()
	atomic.AddInt64(&ctx.frees, 1)
	return nil
}

// LiveSites returns the allocation sites of still-live handles, oldest
// first. Empty outside debug mode. Used for leak reports at teardown.
func (ctx *ManualContext) LiveSites() []string {
	if !ctx.debug {
		return nil
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	type leak struct {
		seq  uint64
		desc string
	}
	leaks := make([]leak, 0, len(ctx.live))
	for obj, site := range ctx.live {
		leaks = append(leaks, leak{obj.seq, fmt.Sprintf("%s (%s)", site, obj.typ.Name)})
	}
	sort.Slice(leaks, func(i, j int) bool { return leaks[i].seq < leaks[j].seq })

	out := make([]string, len(leaks))
	for i, l := range leaks {
		out[i] = l.desc
	}
	return out
}

// Stats returns manual allocation counters.
func (ctx *ManualContext) Stats() ManualStats {
	live := int64(0)
	if ctx.debug {
		ctx.mu.Lock()
		live = int64(len(ctx.live))
		ctx.mu.Unlock()
	}
	return ManualStats{
		Allocs:      atomic.LoadInt64(&ctx.allocs),
		Frees:       atomic.LoadInt64(&ctx.frees),
		DoubleFrees: atomic.LoadInt64(&ctx.doubleFrees),
		Live:        live,
	}
}
