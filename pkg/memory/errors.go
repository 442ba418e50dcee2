package memory

import "errors"

// Error taxonomy for the allocation subsystem. Every condition is surfaced
// to the caller, never silently corrected. PoolExhausted is the only
// condition in this package a caller is expected to recover from
// programmatically; the rest indicate caller misuse.
//
// Debug-only checks (double-free tracking, dynamic escape checks) are
// controlled by Config.Debug. With Debug off, manual double frees are
// undefined-behavior-equivalent: the adapter performs no bookkeeping and
// the misuse goes unreported.
var (
	// ErrStrategyMismatch reports a cross-strategy store or a strategy-
	// specific operation applied to an object of another strategy.
	ErrStrategyMismatch = errors.New("strategy mismatch")

	// ErrDoubleFree reports a manual deallocate of an already-freed or
	// foreign handle. Detected only in debug mode.
	ErrDoubleFree = errors.New("double free or foreign pointer")

	// ErrUseAfterFree reports retain/release on an invalidated hybrid
	// handle, or payload access after finalization.
	ErrUseAfterFree = errors.New("use after free")

	// ErrPoolExhausted reports allocation from a pool with no free slots.
	// Recoverable: release a slot or pre-size the pool correctly.
	ErrPoolExhausted = errors.New("pool exhausted")

	// ErrArenaEscape reports a store that would let an arena-allocated
	// object outlive its arena's scope. Best-effort: only raised when the
	// destination's strategy and scope are known.
	ErrArenaEscape = errors.New("arena escape violation")

	// ErrArenaClosed reports allocation from or closing of an arena that
	// was already torn down.
	ErrArenaClosed = errors.New("arena already closed")

	// ErrPoolDestroyed reports an operation on a destroyed pool.
	ErrPoolDestroyed = errors.New("pool already destroyed")

	// ErrUnknownType reports an allocation site naming an unregistered type.
	ErrUnknownType = errors.New("unknown type")

	// ErrScopeMismatch reports a close of a scope that is not the innermost
	// open scope, or an operation on a closed scope.
	ErrScopeMismatch = errors.New("scope mismatch")
)
