package memory

import (
	"testing"
)

func TestRegionBumpAllocation(t *testing.T) {
	r := newRegion(1024)

	buf := r.alloc(100, 8)
	if len(buf) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(buf))
	}
	if r.watermark() != 100 {
		t.Errorf("expected watermark 100, got %d", r.watermark())
	}
}

func TestRegionAlignment(t *testing.T) {
	r := newRegion(1024)

	r.alloc(3, 8)
	r.alloc(8, 8)
	// 3 rounds up to 8 before the second allocation.
	if r.watermark() != 16 {
		t.Errorf("expected watermark 16 after aligned bump, got %d", r.watermark())
	}

	r2 := newRegion(1024)
	r2.alloc(1, 16)
	r2.alloc(16, 16)
	if r2.watermark() != 32 {
		t.Errorf("expected watermark 32 with 16-byte alignment, got %d", r2.watermark())
	}
}

func TestRegionGrowsByChunk(t *testing.T) {
	r := newRegion(64)

	for i := 0; i < 10; i++ {
		if buf := r.alloc(48, 8); buf == nil {
			t.Fatalf("allocation %d failed", i)
		}
	}
	if len(r.chunks) < 2 {
		t.Errorf("expected region to grow beyond one chunk, got %d", len(r.chunks))
	}
}

func TestRegionOversizedAllocation(t *testing.T) {
	r := newRegion(64)

	buf := r.alloc(1024, 8)
	if len(buf) != 1024 {
		t.Fatalf("expected oversized chunk, got %d bytes", len(buf))
	}
}

func TestRegionReleaseIsTerminal(t *testing.T) {
	r := newRegion(1024)
	r.alloc(100, 8)

	r.release()
	if r.watermark() != 0 {
		t.Errorf("expected watermark 0 after release, got %d", r.watermark())
	}
	if buf := r.alloc(10, 8); buf != nil {
		t.Error("allocation after release should fail")
	}
}

func TestRegionDistinctAllocations(t *testing.T) {
	r := newRegion(1024)

	a := r.alloc(8, 8)
	b := r.alloc(8, 8)
	a[0] = 0xAA
	b[0] = 0xBB
	if a[0] != 0xAA {
		t.Error("allocations alias the same bytes")
	}
}
