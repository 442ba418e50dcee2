package memory

import (
	"testing"

	"github.com/rs/zerolog"
)

// ============ Arena Benchmarks ============

func BenchmarkArena_Allocate(b *testing.B) {
	ctx := newBenchArenas()
	a := ctx.Open(1, nil)
	td := &TypeDescriptor{Name: "T", Size: 64, Align: 8}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ctx.Allocate(a, td)
	}
}

func BenchmarkArena_OpenClose(b *testing.B) {
	ctx := newBenchArenas()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a := ctx.Open(1, nil)
		_ = ctx.Close(a)
	}
}

// Batch release cost must not scale with the number of trivial objects.
func BenchmarkArena_CloseTrivial100(b *testing.B)   { benchCloseTrivial(b, 100) }
func BenchmarkArena_CloseTrivial10000(b *testing.B) { benchCloseTrivial(b, 10000) }

func benchCloseTrivial(b *testing.B, count int) {
	ctx := newBenchArenas()
	td := &TypeDescriptor{Name: "T", Size: 32, Align: 8}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		a := ctx.Open(1, nil)
		for j := 0; j < count; j++ {
			_, _ = ctx.Allocate(a, td)
		}
		b.StartTimer()
		_ = ctx.Close(a)
	}
}

func newBenchArenas() *ArenaContext {
	return NewArenaContext(1<<20, zerolog.Nop())
}

// ============ Pool Benchmarks ============

func BenchmarkPool_AllocateRelease(b *testing.B) {
	ctx := NewPoolContext(zerolog.Nop())
	td := &TypeDescriptor{Name: "P", Size: 64, Align: 8}
	p, _ := ctx.Create(td, 1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		o, _ := p.Allocate()
		_ = p.Release(o)
	}
}

// ============ Hybrid Benchmarks ============

func BenchmarkHybrid_RetainRelease(b *testing.B) {
	ctx := NewHybridContext(zerolog.Nop())
	td := &TypeDescriptor{Name: "H", Size: 64, Align: 8}
	obj := ctx.Allocate(td, 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ctx.Retain(obj)
		_ = ctx.Release(obj)
	}
}

func BenchmarkHybrid_RetainReleaseParallel(b *testing.B) {
	ctx := NewHybridContext(zerolog.Nop())
	td := &TypeDescriptor{Name: "H", Size: 64, Align: 8}
	obj := ctx.Allocate(td, 1)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = ctx.Retain(obj)
			_ = ctx.Release(obj)
		}
	})
}

// ============ Facade Benchmarks ============

func BenchmarkFacade_AutomaticScopeChurn(b *testing.B) {
	a := NewAllocator(Config{})
	_, _ = a.RegisterType(TypeDescriptor{Name: "V", Size: 32, Align: 8})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.OpenScope()
		_, _ = a.Allocate(Site{Type: "V", Strategy: StrategyAutomatic})
		_ = a.CloseScope()
	}
}

func BenchmarkFacade_Dispatch(b *testing.B) {
	a := NewAllocator(Config{})
	_, _ = a.RegisterType(TypeDescriptor{Name: "V", Size: 32, Align: 8})
	site := Site{Type: "V", Strategy: StrategyHybrid}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		o, _ := a.Allocate(site)
		_ = a.Release(o)
	}
}
