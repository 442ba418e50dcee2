//go:build unix

package memory

import "golang.org/x/sys/unix"

// Region chunks are anonymous private mappings so a whole arena can be
// returned to the OS in one munmap per chunk. Falls back to the Go heap if
// the mapping fails (resource limits, odd platforms).

func mapChunk(size int) ([]byte, bool) {
	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return make([]byte, size), false
	}
	return buf, true
}

func unmapChunk(buf []byte, mapped bool) {
	if mapped && buf != nil {
		_ = unix.Munmap(buf)
	}
}
