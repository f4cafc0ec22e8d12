package device

import (
	"errors"
	"sync"
)

// ErrPoolReleased reports an allocation attempt after the pool was released.
var ErrPoolReleased = errors.New("device: pool released")

// Pool is a scoped allocator for the device and pinned host blocks of one
// pipeline run. Ownership is explicit: every block allocated through the
// pool is released together by Release, on the success and error paths
// alike, instead of lingering in process-wide allocator state.
type Pool struct {
	mu       sync.Mutex
	blocks   []*Block
	elems    int64
	released bool
}

// NewPool creates an empty pool.
func NewPool() *Pool { return &Pool{} }

// Device allocates a zeroed device block of the given shape.
func (p *Pool) Device(dims [3]int) (*Block, error) { return p.alloc(dims) }

// Pinned allocates a zeroed page-locked host block of the given shape.
func (p *Pool) Pinned(dims [3]int) (*Block, error) { return p.alloc(dims) }

func (p *Pool) alloc(dims [3]int) (*Block, error) {
	n := dims[0] * dims[1] * dims[2]
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil, ErrPoolReleased
	}
	b := &Block{dims: dims, data: make([]float32, n)}
	p.blocks = append(p.blocks, b)
	p.elems += int64(n)
	return b, nil
}

// AllocatedElems returns the total element count currently held.
func (p *Pool) AllocatedElems() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elems
}

// Release frees every block owned by the pool. Blocks must not be used
// after release; their storage is detached so stale holders fail fast.
func (p *Pool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return
	}
	p.released = true
	for _, b := range p.blocks {
		b.data = nil
		b.dims = [3]int{}
	}
	p.blocks = nil
	p.elems = 0
}
