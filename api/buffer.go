// Package api
// Author: momentics
//
// Pooled scratch buffers used by the read path.

package api

// Buffer is a pooled byte region.
type Buffer interface {
	// Bytes returns the buffer contents.
	Bytes() []byte

	// Release returns the buffer to its pool.
	// After Release, buffer must not be used.
	Release()
}

// BufferPool hands out buffers of at least size bytes.
type BufferPool interface {
	Get(size int) Buffer
	Put(b Buffer)
	Stats() BufferPoolStats
}

// BufferPoolStats aggregates buffer allocation/reuse stats.
type BufferPoolStats struct {
	TotalAlloc int64
	TotalReuse int64
}
