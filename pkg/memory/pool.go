package memory

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Pool Manager - fixed-capacity slab allocation
//
// A pool owns one slab of pre-sized slots for a single type, declared with
// a fixed capacity (@pool_size). Released slot indices go onto a LIFO
// free-list so the most recently released slot is reused first. Exhaustion
// is an explicit PoolExhausted failure, never a silent fall-back to heap
// allocation: pools exist for predictable latency, and callers either
// pre-size them correctly or treat exhaustion as a recoverable resource
// limit.
//
// A pool is owned by one task; sharing a pool across tasks is a caller
// obligation (the pool adds no synchronization on the allocate/release
// path). The PoolContext registry itself is locked, since pools for
// different types may be created from different tasks.

// PoolID uniquely identifies a pool.
type PoolID uint64

var nextPoolID uint64

// Pool is a fixed-capacity slab of slots for one type.
type Pool struct {
	ID       PoolID
	Type     *TypeDescriptor
	Capacity int

	slab      []byte
	slotSize  int
	free      []int     // free slot indices, LIFO
	slots     []*Object // live object per slot, nil = free
	peak      int
	destroyed bool
}

// Pool slot accounting.

// FreeSlots returns the number of slots currently on the free-list.
func (p *Pool) FreeSlots() int {
	return len(p.free)
}

// LiveSlots returns the number of currently-occupied slots.
func (p *Pool) LiveSlots() int {
	return p.Capacity - len(p.free)
}

// PeakLive returns the high-water mark of concurrently occupied slots.
func (p *Pool) PeakLive() int {
	return p.peak
}

// Allocate pops a slot off the free-list. Fails with ErrPoolExhausted when
// no slot is free.
func (p *Pool) Allocate() (*Object, error) {
	if p.destroyed {
		return nil, fmt.Errorf("%w: pool %d (%s)", ErrPoolDestroyed, p.ID, p.Type.Name)
	}
	if len(p.free) == 0 {
		return nil, fmt.Errorf("%w: pool %d (%s, capacity %d)",
			ErrPoolExhausted, p.ID, p.Type.Name, p.Capacity)
	}

	slot := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	start := slot * p.slotSize
	obj := &Object{
		strategy: StrategyPooled,
		typ:      p.Type,
		bytes:    p.slab[start : start+p.Type.Size : start+p.Type.Size],
		poolID:   p.ID,
		slot:     slot,
		seq:      nextAllocSeq(),
	}
	p.slots[slot] = obj

	if live := p.LiveSlots(); live > p.peak {
		p.peak = live
	}
	return obj, nil
}

// Release runs the finalizer and pushes the slot back onto the free-list.
// Foreign handles and double releases fail with ErrDoubleFree.
func (p *Pool) Release(obj *Object) error {
	if p.destroyed {
		return fmt.Errorf("%w: pool %d (%s)", ErrPoolDestroyed, p.ID, p.Type.Name)
	}
	if obj.strategy != StrategyPooled || obj.poolID != p.ID {
		return fmt.Errorf("%w: handle does not belong to pool %d", ErrDoubleFree, p.ID)
	}
	if obj.slot < 0 || obj.slot >= p.Capacity || p.slots[obj.slot] != obj {
		return fmt.Errorf("%w: slot %d of pool %d already released",
			ErrDoubleFree, obj.slot, p.ID)
	}

	p.slots[obj.slot] = nil
	obj.finalize()
	p.free = append(p.free, obj.slot)
	return nil
}

// Destroy runs finalizers on all occupied slots, then drops the slab.
func (p *Pool) Destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	for slot, obj := range p.slots {
		if obj != nil {
			obj.finalize()
			p.slots[slot] = nil
		}
	}
	p.slab = nil
	p.free = nil
}

// PoolContext is the registry of pools, keyed by type name. One pool per
// type: pool capacity is fixed at declaration.
type PoolContext struct {
	logger zerolog.Logger

	mu     sync.Mutex
	pools  map[PoolID]*Pool
	byType map[string]*Pool

	creates   int64 // atomic
	exhausted int64 // atomic
}

// NewPoolContext creates a pool registry.
func NewPoolContext(logger zerolog.Logger) *PoolContext {
	return &PoolContext{
		logger: logger,
		pools:  make(map[PoolID]*Pool),
		byType: make(map[string]*Pool),
	}
}

// Create builds a pool of fixed capacity for a type. A second pool for the
// same type is an error: capacity is declared once.
func (ctx *PoolContext) Create(td *TypeDescriptor, capacity int) (*Pool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("pool for %s has non-positive capacity %d", td.Name, capacity)
	}

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if _, ok := ctx.byType[td.Name]; ok {
		return nil, fmt.Errorf("pool for %s already exists", td.Name)
	}

	slotSize := alignUp(td.Size, td.Align)
	p := &Pool{
		ID:       PoolID(atomic.AddUint64(&nextPoolID, 1)),
		Type:     td,
		Capacity: capacity,
		slab:     make([]byte, slotSize*capacity),
		slotSize: slotSize,
		free:     make([]int, 0, capacity),
		slots:    make([]*Object, capacity),
	}
	// LIFO free-list: slot 0 on top so first allocations walk the slab
	// front to back.
	for slot := capacity - 1; slot >= 0; slot-- {
		p.free = append(p.free, slot)
	}

	ctx.pools[p.ID] = p
	ctx.byType[td.Name] = p
	atomic.AddInt64(&ctx.creates, 1)

	ctx.logger.Debug().
		Str("type", td.Name).
		Int("capacity", capacity).
		Msg("pool create")
	return p, nil
}

// ForType returns the pool declared for a type.
func (ctx *PoolContext) ForType(name string) (*Pool, bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	p, ok := ctx.byType[name]
	return p, ok
}

// Lookup returns a pool by ID.
func (ctx *PoolContext) Lookup(id PoolID) (*Pool, bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	p, ok := ctx.pools[id]
	return p, ok
}

// RecordExhaustion counts a PoolExhausted failure for stats.
func (ctx *PoolContext) RecordExhaustion() {
	atomic.AddInt64(&ctx.exhausted, 1)
}

// DestroyAll tears down every pool (module/program teardown).
func (ctx *PoolContext) DestroyAll() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	for _, p := range ctx.pools {
		p.Destroy()
	}
	ctx.pools = make(map[PoolID]*Pool)
	ctx.byType = make(map[string]*Pool)
}

// Stats returns pool counters.
func (ctx *PoolContext) Stats() PoolStats {
	ctx.mu.Lock()
	live := int64(0)
	for _, p := range ctx.pools {
		live += int64(p.LiveSlots())
	}
	count := int64(len(ctx.pools))
	ctx.mu.Unlock()

	return PoolStats{
		Pools:     count,
		LiveSlots: live,
		Creates:   atomic.LoadInt64(&ctx.creates),
		Exhausted: atomic.LoadInt64(&ctx.exhausted),
	}
}
