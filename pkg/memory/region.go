package memory

// Chunked bump region backing the arena manager.
//
// A region owns a list of chunks; each chunk has a monotonically increasing
// watermark. Allocation bumps the watermark of the current chunk, growing
// by one chunk when it does not fit. Release drops every chunk in one step,
// independent of how many objects were carved out of them.
//
// Chunks come from mmap on unix builds and from the Go heap elsewhere
// (region_mmap_*.go).

// DefaultChunkSize is the region chunk size used when Config leaves it zero
// (64 KiB).
const DefaultChunkSize = 1 << 16

type regionChunk struct {
	buf    []byte
	off    int
	mapped bool // obtained via mmap, must be munmapped on release
}

type region struct {
	chunks    []regionChunk
	chunkSize int
	released  bool
}

func newRegion(chunkSize int) *region {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &region{chunkSize: chunkSize}
}

// alloc bumps the watermark and returns size bytes aligned to align.
func (r *region) alloc(size, align int) []byte {
	if r.released {
		return nil
	}
	if align <= 0 {
		align = 8
	}

	if n := len(r.chunks); n > 0 {
		c := &r.chunks[n-1]
		off := alignUp(c.off, align)
		if off+size <= len(c.buf) {
			c.off = off + size
			return c.buf[off : off+size : off+size]
		}
	}

	r.grow(size)
	c := &r.chunks[len(r.chunks)-1]
	c.off = size
	return c.buf[0:size:size]
}

// watermark returns total bytes bumped across all chunks.
func (r *region) watermark() int {
	total := 0
	for i := range r.chunks {
		total += r.chunks[i].off
	}
	return total
}

// release drops every chunk in one step.
func (r *region) release() {
	for i := range r.chunks {
		unmapChunk(r.chunks[i].buf, r.chunks[i].mapped)
	}
	r.chunks = nil
	r.released = true
}

func (r *region) grow(min int) {
	size := r.chunkSize
	if min > size {
		size = min
	}
	buf, mapped := mapChunk(size)
	r.chunks = append(r.chunks, regionChunk{buf: buf, mapped: mapped})
}

func alignUp(off, align int) int {
	mask := align - 1
	return (off + mask) &^ mask
}
