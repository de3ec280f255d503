// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
//
// Size-segmented BufferPool manager and the sync.Pool backed pool it hands
// out.

package pool

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-invert/api"
)

// BufferPoolManager provides one BufferPool per buffer size.
type BufferPoolManager struct {
	mu    sync.RWMutex
	pools map[int]api.BufferPool
}

// NewBufferPoolManager creates and initializes a new manager.
func NewBufferPoolManager() *BufferPoolManager {
	return &BufferPoolManager{
		pools: make(map[int]api.BufferPool),
	}
}

// GetPool obtains or creates the pool for buffers of size bytes.
func (m *BufferPoolManager) GetPool(size int) api.BufferPool {
	m.mu.RLock()
	p, ok := m.pools[size]
	m.mu.RUnlock()
	if ok {
		return p
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[size]; ok {
		return p
	}
	p = newBufferPool(size)
	m.pools[size] = p
	return p
}

var (
	defaultOnce sync.Once
	defaultMgr  *BufferPoolManager
)

// DefaultManager returns the process-wide manager.
func DefaultManager() *BufferPoolManager {
	defaultOnce.Do(func() {
		defaultMgr = NewBufferPoolManager()
	})
	return defaultMgr
}

// DefaultPool is a shortcut to fetch a pool from the default manager.
func DefaultPool(size int) api.BufferPool {
	return DefaultManager().GetPool(size)
}

// scratchBuffer implements api.Buffer.
type scratchBuffer struct {
	data []byte
	pool *bufferPool
	used atomic.Bool
}

func (b *scratchBuffer) Bytes() []byte { return b.data }

// Release returns the buffer to its pool. Releasing twice is a no-op.
func (b *scratchBuffer) Release() {
	if b.used.CompareAndSwap(true, false) {
		b.pool.pool.Put(b)
	}
}

type bufferPool struct {
	pool    sync.Pool
	bufSize int
	alloc   atomic.Int64
	reuse   atomic.Int64
}

func newBufferPool(size int) *bufferPool {
	return &bufferPool{bufSize: size}
}

// Get returns a buffer of exactly size bytes.
func (bp *bufferPool) Get(size int) api.Buffer {
	if v := bp.pool.Get(); v != nil {
		b := v.(*scratchBuffer)
		if cap(b.data) >= size {
			b.data = b.data[:size]
			b.used.Store(true)
			bp.reuse.Add(1)
			return b
		}
	}
	bp.alloc.Add(1)
	b := &scratchBuffer{data: make([]byte, size, max(size, bp.bufSize)), pool: bp}
	b.used.Store(true)
	return b
}

// Put releases b if it came from this pool.
func (bp *bufferPool) Put(b api.Buffer) {
	if sb, ok := b.(*scratchBuffer); ok && sb.pool == bp {
		sb.Release()
	}
}

func (bp *bufferPool) Stats() api.BufferPoolStats {
	return api.BufferPoolStats{
		TotalAlloc: bp.alloc.Load(),
		TotalReuse: bp.reuse.Load(),
	}
}
