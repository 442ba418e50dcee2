package memory

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Allocation Facade
//
// The single entry point the front end and codegen call. A Site is the
// per-allocation record the front end emits: type name, declared strategy,
// enclosing scope, decorators. The facade derives the effective strategy
// (decorators win over the declaration keyword), routes to the matching
// manager, and enforces the cross-strategy safety checks so disciplines
// cannot corrupt each other.
//
// Strategy dispatch is a switch over the header tag. There is no virtual
// object hierarchy: one tagged header format covers all five disciplines.

// Site is the allocation-site contract consumed from the front end:
// type descriptor name, declared strategy, enclosing scope, and the
// @pool_size / @arena_allocate decorators. Loc is the source location, used
// by debug registries and leak reports.
type Site struct {
	Type     string
	Strategy Strategy
	ScopeID  uint64

	PoolSize      int
	ArenaAllocate bool

	Loc string
}

// Config controls the allocator. Debug enables the manual registry,
// leak reports and dynamic misuse checks that release builds drop; the
// downgrade is only ever this explicit switch.
type Config struct {
	Debug     bool
	ChunkSize int             // arena region chunk size, DefaultChunkSize if zero
	Logger    *zerolog.Logger // nil disables logging
}

// Allocator is the unified allocation subsystem.
type Allocator struct {
	cfg    Config
	logger zerolog.Logger

	types  *TypeRegistry
	manual *ManualContext
	hybrid *HybridContext
	arenas *ArenaContext
	pools  *PoolContext
	auto   *AutoContext
	scopes *ScopeContext
}

// NewAllocator creates an allocator with all five managers wired.
func NewAllocator(cfg Config) *Allocator {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	arenas := NewArenaContext(cfg.ChunkSize, logger)
	return &Allocator{
		cfg:    cfg,
		logger: logger,
		types:  NewTypeRegistry(),
		manual: NewManualContext(cfg.Debug, logger),
		hybrid: NewHybridContext(logger),
		arenas: arenas,
		pools:  NewPoolContext(logger),
		auto:   NewAutoContext(logger),
		scopes: NewScopeContext(arenas),
	}
}

// RegisterType registers a type descriptor. Types declared with a
// @pool_size decorator get their fixed-capacity pool created here, before
// the first allocation.
func (a *Allocator) RegisterType(td TypeDescriptor) (*TypeDescriptor, error) {
	desc, err := a.types.Register(td)
	if err != nil {
		return nil, err
	}
	if desc.PoolSize > 0 {
		if _, err := a.pools.Create(desc, desc.PoolSize); err != nil {
			return nil, err
		}
	}
	return desc, nil
}

// Types returns the type registry.
func (a *Allocator) Types() *TypeRegistry {
	return a.types
}

// OpenScope brackets function/block entry.
func (a *Allocator) OpenScope() *Scope {
	return a.scopes.Open()
}

// CloseScope brackets function/block exit, on every exit path.
func (a *Allocator) CloseScope() error {
	return a.scopes.Close()
}

// CurrentScope returns the innermost open scope.
func (a *Allocator) CurrentScope() *Scope {
	return a.scopes.Current()
}

// effectiveStrategy derives the final tag: decorators override the declared
// keyword, matching how allocation sites are emitted.
func (s Site) effectiveStrategy(td *TypeDescriptor) Strategy {
	if s.ArenaAllocate {
		return StrategyArena
	}
	if s.PoolSize > 0 || td.PoolSize > 0 {
		return StrategyPooled
	}
	return s.Strategy
}

// Allocate routes an allocation site to its manager and returns the
// header-tagged handle.
func (a *Allocator) Allocate(site Site) (*Object, error) {
	td, err := a.types.Lookup(site.Type)
	if err != nil {
		return nil, err
	}

	scope := a.scopes.Current()
	if site.ScopeID != 0 {
		s, ok := a.scopes.Lookup(site.ScopeID)
		if !ok {
			return nil, fmt.Errorf("%w: scope %d not open", ErrScopeMismatch, site.ScopeID)
		}
		scope = s
	}

	switch site.effectiveStrategy(td) {
	case StrategyManual:
		return a.manual.Allocate(td, scope.ID, site.Loc), nil

	case StrategyHybrid:
		return a.hybrid.Allocate(td, scope.ID), nil

	case StrategyAutomatic:
		return a.auto.Allocate(td, scope), nil

	case StrategyArena:
		return a.arenas.Allocate(a.scopes.EnsureArena(scope), td)

	case StrategyPooled:
		pool, ok := a.pools.ForType(td.Name)
		if !ok {
			capacity := site.PoolSize
			if capacity == 0 {
				capacity = td.PoolSize
			}
			pool, err = a.pools.Create(td, capacity)
			if err != nil {
				return nil, err
			}
		}
		obj, err := pool.Allocate()
		if err != nil {
			a.pools.RecordExhaustion()
			return nil, err
		}
		return obj, nil

	default:
		return nil, fmt.Errorf("%w: site for %s has no strategy", ErrStrategyMismatch, site.Type)
	}
}

// ReleaseOrDrop is the strategy-dispatched release:
//
//	manual    - no-op, the owner calls Deallocate explicitly
//	hybrid    - one Release (owner count decrement)
//	automatic - released now instead of at scope exit
//	pooled    - slot returned to the owning pool's free-list
//	arena     - no-op, the arena owns the lifecycle
func (a *Allocator) ReleaseOrDrop(obj *Object) error {
	switch obj.strategy {
	case StrategyManual, StrategyArena:
		return nil
	case StrategyHybrid:
		return a.hybrid.Release(obj)
	case StrategyAutomatic:
		a.auto.Drop(obj)
		return nil
	case StrategyPooled:
		pool, ok := a.pools.Lookup(obj.poolID)
		if !ok {
			return fmt.Errorf("%w: pool %d gone", ErrPoolDestroyed, obj.poolID)
		}
		return pool.Release(obj)
	default:
		return fmt.Errorf("%w: object with unknown strategy", ErrStrategyMismatch)
	}
}

// Deallocate is the explicit manual free.
func (a *Allocator) Deallocate(obj *Object) error {
	return a.manual.Deallocate(obj)
}

// Retain increments a hybrid object's owner count.
func (a *Allocator) Retain(obj *Object) error {
	return a.hybrid.Retain(obj)
}

// Release decrements a hybrid object's owner count.
func (a *Allocator) Release(obj *Object) error {
	return a.hybrid.Release(obj)
}

// CheckStore validates storing src into a container object dst. It rejects
// cross-strategy stores (the container must CloneInto instead) and, best
// effort, stores that would let an arena object outlive its scope. The
// check mutates nothing: on failure both objects are untouched.
func (a *Allocator) CheckStore(dst, src *Object) error {
	if !src.Live() {
		return fmt.Errorf("%w: storing dead %s object", ErrUseAfterFree, src.strategy)
	}
	if !dst.Live() {
		return fmt.Errorf("%w: store into dead %s object", ErrUseAfterFree, dst.strategy)
	}

	if src.strategy == StrategyArena {
		if err := a.checkArenaEscape(dst, src); err != nil {
			return err
		}
	}

	if dst.strategy != src.strategy {
		return fmt.Errorf("%w: cannot store %s handle into %s container",
			ErrStrategyMismatch, src.strategy, dst.strategy)
	}
	return nil
}

// checkArenaEscape rejects stores whose destination is statically known to
// outlive the source arena's scope. Destinations whose lifetime the runtime
// cannot see remain the caller's obligation.
func (a *Allocator) checkArenaEscape(dst, src *Object) error {
	switch dst.strategy {
	case StrategyManual, StrategyHybrid:
		// Owner-tracked containers are not bounded by any scope.
		return fmt.Errorf("%w: %s container outlives arena %d",
			ErrArenaEscape, dst.strategy, src.arenaID)
	}

	srcScope, ok1 := a.scopes.Lookup(src.scopeID)
	dstScope, ok2 := a.scopes.Lookup(dst.scopeID)
	if !ok1 || !ok2 {
		return nil
	}
	if dstScope.Depth < srcScope.Depth {
		return fmt.Errorf("%w: container in scope depth %d outlives arena scope depth %d",
			ErrArenaEscape, dstScope.Depth, srcScope.Depth)
	}
	return nil
}

// CloneInto copies src's payload into a fresh allocation made at site,
// giving the copy the destination's own strategy. This is the sanctioned
// way to move a value between disciplines.
func (a *Allocator) CloneInto(src *Object, site Site) (*Object, error) {
	if !src.Live() {
		return nil, fmt.Errorf("%w: cloning dead object", ErrUseAfterFree)
	}
	dst, err := a.Allocate(site)
	if err != nil {
		return nil, err
	}
	copy(dst.bytes, src.bytes)
	return dst, nil
}

// LeakReport returns allocation sites of live manual handles (debug mode).
func (a *Allocator) LeakReport() []string {
	return a.manual.LiveSites()
}

// Stats aggregates every manager's counters.
func (a *Allocator) Stats() AllocatorStats {
	return AllocatorStats{
		Manual: a.manual.Stats(),
		Hybrid: a.hybrid.Stats(),
		Arena:  a.arenas.Stats(),
		Pool:   a.pools.Stats(),
		Auto:   a.auto.Stats(a.scopes),
	}
}

// Close tears the subsystem down: pools are destroyed (finalizers run on
// occupied slots) and, in debug mode, un-freed manual handles are reported
// as leaks.
func (a *Allocator) Close() error {
	a.pools.DestroyAll()

	if a.cfg.Debug {
		if leaks := a.manual.LiveSites(); len(leaks) > 0 {
			for _, l := range leaks {
				a.logger.Warn().Str("site", l).Msg("leaked manual allocation")
			}
			return fmt.Errorf("%d leaked manual allocation(s): %v", len(leaks), leaks)
		}
	}
	return nil
}
