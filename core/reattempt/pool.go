// File: core/reattempt/pool.go
// Pool is a free-list of *Buffer, so the arena backing a connection's
// normal/replay reattempt state can be reused by the next connection
// instead of collected. Mirrors the Get/Put shape of the teacher's
// pool.slabPool (momentics-hioload-ws/pool/slab_pool.go), backed here by
// a plain FIFO queue rather than a lock-free MPMC one, since the pool is
// only ever touched from the framer goroutine.
package reattempt

import (
	"sync"

	"github.com/eapache/queue"
)

// Pool hands out *Buffer instances, preferring to reuse a previously
// released one over allocating.
type Pool struct {
	mu   sync.Mutex
	free *queue.Queue
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{free: queue.New()}
}

// Get returns a Buffer, reused from the free-list if one is available.
func (p *Pool) Get() *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.free.Length() > 0 {
		return p.free.Remove().(*Buffer)
	}
	return &Buffer{}
}

// Put resets and returns buf to the pool for reuse. buf must not be
// used by the caller afterwards.
func (p *Pool) Put(buf *Buffer) {
	buf.Reset()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free.Add(buf)
}
