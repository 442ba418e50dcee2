//go:build !unix

package memory

func mapChunk(size int) ([]byte, bool) {
	return make([]byte, size), false
}

func unmapChunk(buf []byte, mapped bool) {}
