package memory

// Statistics for monitoring. Counters are snapshots; they are kept with
// atomics on the hot paths and aggregated by Allocator.Stats.

// ManualStats counts manual adapter activity.
type ManualStats struct {
	Allocs      int64
	Frees       int64
	DoubleFrees int64 // detected double frees (debug mode only)
	Live        int64 // live handles (debug mode only)
}

// HybridStats counts refcount manager activity.
type HybridStats struct {
	Allocs       int64
	Retains      int64
	Releases     int64
	Finalized    int64
	UseAfterFree int64 // retain/release attempts on dead objects
}

// ArenaStats counts arena manager activity.
type ArenaStats struct {
	Opens  int64
	Closes int64
	Allocs int64
	Open   int64 // arenas not yet closed
}

// PoolStats counts pool manager activity.
type PoolStats struct {
	Pools     int64
	LiveSlots int64
	Creates   int64
	Exhausted int64 // PoolExhausted failures
}

// AutoStats counts automatic-tier activity.
type AutoStats struct {
	Allocs   int64
	Released int64 // released at scope exit
}

// AllocatorStats aggregates every manager's counters.
type AllocatorStats struct {
	Manual ManualStats
	Hybrid HybridStats
	Arena  ArenaStats
	Pool   PoolStats
	Auto   AutoStats
}
