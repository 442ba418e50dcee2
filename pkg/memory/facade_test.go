package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	return NewAllocator(Config{Debug: true})
}

func registerPlain(t *testing.T, a *Allocator, name string, size int) *TypeDescriptor {
	t.Helper()
	td, err := a.RegisterType(TypeDescriptor{Name: name, Size: size, Align: 8})
	require.NoError(t, err)
	return td
}

func TestFacadeDispatchPerStrategy(t *testing.T) {
	a := newTestAllocator(t)
	registerPlain(t, a, "Value", 16)

	scope := a.OpenScope()
	defer func() { require.NoError(t, a.CloseScope()) }()

	cases := []struct {
		site Site
		want Strategy
	}{
		{Site{Type: "Value", Strategy: StrategyManual}, StrategyManual},
		{Site{Type: "Value", Strategy: StrategyHybrid}, StrategyHybrid},
		{Site{Type: "Value", Strategy: StrategyAutomatic}, StrategyAutomatic},
		{Site{Type: "Value", Strategy: StrategyAutomatic, ArenaAllocate: true}, StrategyArena},
		{Site{Type: "Value", Strategy: StrategyAutomatic, PoolSize: 4}, StrategyPooled},
	}
	for _, tc := range cases {
		obj, err := a.Allocate(tc.site)
		require.NoError(t, err, "strategy %s", tc.want)
		assert.Equal(t, tc.want, obj.Strategy())
		assert.Len(t, obj.Bytes(), 16)
		if tc.want != StrategyPooled {
			assert.Equal(t, scope.ID, obj.ScopeID())
		}
	}
}

func TestFacadeUnknownType(t *testing.T) {
	a := newTestAllocator(t)

	_, err := a.Allocate(Site{Type: "Missing", Strategy: StrategyManual})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestFacadePoolSizeDecoratorPreCreatesPool(t *testing.T) {
	a := newTestAllocator(t)
	_, err := a.RegisterType(TypeDescriptor{Name: "Particle", Size: 24, Align: 8, PoolSize: 2})
	require.NoError(t, err)

	// The declared strategy is irrelevant once @pool_size is on the type.
	first, err := a.Allocate(Site{Type: "Particle", Strategy: StrategyAutomatic})
	require.NoError(t, err)
	assert.Equal(t, StrategyPooled, first.Strategy())

	_, err = a.Allocate(Site{Type: "Particle", Strategy: StrategyAutomatic})
	require.NoError(t, err)

	_, err = a.Allocate(Site{Type: "Particle", Strategy: StrategyAutomatic})
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.EqualValues(t, 1, a.Stats().Pool.Exhausted)

	require.NoError(t, a.ReleaseOrDrop(first))
	_, err = a.Allocate(Site{Type: "Particle", Strategy: StrategyAutomatic})
	assert.NoError(t, err)
}

func TestFacadeCrossStrategyStoreRejected(t *testing.T) {
	// Storing a manual handle into a hybrid container fails with
	// StrategyMismatch and leaves both objects untouched.
	a := newTestAllocator(t)
	registerPlain(t, a, "Node", 16)

	manual, err := a.Allocate(Site{Type: "Node", Strategy: StrategyManual})
	require.NoError(t, err)
	hybrid, err := a.Allocate(Site{Type: "Node", Strategy: StrategyHybrid})
	require.NoError(t, err)

	err = a.CheckStore(hybrid, manual)
	assert.ErrorIs(t, err, ErrStrategyMismatch)

	// No partial mutation: both stay live, strategies and count unchanged.
	assert.True(t, manual.Live())
	assert.True(t, hybrid.Live())
	assert.Equal(t, StrategyManual, manual.Strategy())
	assert.EqualValues(t, 1, hybrid.Refcount())

	// Same-strategy store passes.
	other, err := a.Allocate(Site{Type: "Node", Strategy: StrategyHybrid})
	require.NoError(t, err)
	assert.NoError(t, a.CheckStore(hybrid, other))
}

func TestFacadeArenaEscapeChecks(t *testing.T) {
	a := newTestAllocator(t)
	registerPlain(t, a, "Tmp", 8)

	a.OpenScope()
	arenaObj, err := a.Allocate(Site{Type: "Tmp", Strategy: StrategyAutomatic, ArenaAllocate: true})
	require.NoError(t, err)

	// Arena handle into an owner-tracked container outliving every scope.
	manual, err := a.Allocate(Site{Type: "Tmp", Strategy: StrategyManual})
	require.NoError(t, err)
	assert.ErrorIs(t, a.CheckStore(manual, arenaObj), ErrArenaEscape)

	// Arena handle into an arena container of an inner (shorter-lived)
	// scope is fine; the inverse direction is an escape.
	a.OpenScope()
	innerObj, err := a.Allocate(Site{Type: "Tmp", Strategy: StrategyAutomatic, ArenaAllocate: true})
	require.NoError(t, err)
	assert.NoError(t, a.CheckStore(innerObj, arenaObj))
	assert.ErrorIs(t, a.CheckStore(arenaObj, innerObj), ErrArenaEscape)

	require.NoError(t, a.CloseScope())
	require.NoError(t, a.CloseScope())
}

func TestFacadeCloneIntoCrossesStrategies(t *testing.T) {
	a := newTestAllocator(t)
	registerPlain(t, a, "Blob", 4)

	a.OpenScope()
	src, err := a.Allocate(Site{Type: "Blob", Strategy: StrategyAutomatic, ArenaAllocate: true})
	require.NoError(t, err)
	copy(src.Bytes(), []byte{1, 2, 3, 4})

	dst, err := a.CloneInto(src, Site{Type: "Blob", Strategy: StrategyHybrid})
	require.NoError(t, err)
	assert.Equal(t, StrategyHybrid, dst.Strategy())
	assert.Equal(t, []byte{1, 2, 3, 4}, dst.Bytes())

	// The clone is an independent allocation of the container's strategy.
	require.NoError(t, a.CloseScope())
	assert.False(t, src.Live())
	assert.True(t, dst.Live())
}

func TestFacadeReleaseOrDropSemantics(t *testing.T) {
	a := newTestAllocator(t)
	registerPlain(t, a, "V", 8)

	a.OpenScope()

	// manual: no-op, explicit Deallocate still required.
	manual, _ := a.Allocate(Site{Type: "V", Strategy: StrategyManual})
	require.NoError(t, a.ReleaseOrDrop(manual))
	assert.True(t, manual.Live())
	require.NoError(t, a.Deallocate(manual))

	// hybrid: one release.
	hybrid, _ := a.Allocate(Site{Type: "V", Strategy: StrategyHybrid})
	require.NoError(t, a.ReleaseOrDrop(hybrid))
	assert.False(t, hybrid.Live())

	// automatic: dropped ahead of scope exit.
	auto, _ := a.Allocate(Site{Type: "V", Strategy: StrategyAutomatic})
	require.NoError(t, a.ReleaseOrDrop(auto))
	assert.False(t, auto.Live())

	// arena: no-op, the arena owns the lifecycle.
	arenaObj, _ := a.Allocate(Site{Type: "V", Strategy: StrategyAutomatic, ArenaAllocate: true})
	require.NoError(t, a.ReleaseOrDrop(arenaObj))
	assert.True(t, arenaObj.Live())

	require.NoError(t, a.CloseScope())
	assert.False(t, arenaObj.Live())
}

func TestFacadeCloseReportsLeaks(t *testing.T) {
	a := newTestAllocator(t)
	registerPlain(t, a, "Sock", 8)

	obj, err := a.Allocate(Site{Type: "Sock", Strategy: StrategyManual, Loc: "srv.mf:42"})
	require.NoError(t, err)

	err = a.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "srv.mf:42")

	require.NoError(t, a.Deallocate(obj))
	assert.NoError(t, a.Close())
}

func TestFacadeStatsAggregate(t *testing.T) {
	a := newTestAllocator(t)
	registerPlain(t, a, "S", 8)

	a.OpenScope()
	m, _ := a.Allocate(Site{Type: "S", Strategy: StrategyManual})
	h, _ := a.Allocate(Site{Type: "S", Strategy: StrategyHybrid})
	_, _ = a.Allocate(Site{Type: "S", Strategy: StrategyAutomatic})
	_, _ = a.Allocate(Site{Type: "S", Strategy: StrategyAutomatic, ArenaAllocate: true})
	require.NoError(t, a.Deallocate(m))
	require.NoError(t, a.Release(h))
	require.NoError(t, a.CloseScope())

	stats := a.Stats()
	assert.EqualValues(t, 1, stats.Manual.Allocs)
	assert.EqualValues(t, 1, stats.Manual.Frees)
	assert.EqualValues(t, 1, stats.Hybrid.Finalized)
	assert.EqualValues(t, 1, stats.Auto.Allocs)
	assert.EqualValues(t, 1, stats.Auto.Released)
	assert.EqualValues(t, 1, stats.Arena.Allocs)
	assert.EqualValues(t, 1, stats.Arena.Closes)
}
