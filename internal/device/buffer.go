package device

import "fmt"

// Block is a fixed-capacity memory block with a logical three-dimensional
// shape. Capacity never grows after allocation; shorter remainder chunks
// use a View over the leading elements.
type Block struct {
	dims [3]int
	data []float32
}

// Dims returns the block's logical shape.
func (b *Block) Dims() [3]int { return b.dims }

// Elems returns the logical element count.
func (b *Block) Elems() int { return b.dims[0] * b.dims[1] * b.dims[2] }

// Data returns the logical elements, row-major.
func (b *Block) Data() []float32 { return b.data[:b.Elems()] }

// View narrows the block to a smaller logical shape over the same storage.
// The view must not exceed the block's capacity.
func (b *Block) View(dims [3]int) *Block {
	n := dims[0] * dims[1] * dims[2]
	if n > len(b.data) {
		panic(fmt.Sprintf("device: view %v exceeds block capacity %d", dims, len(b.data)))
	}
	return &Block{dims: dims, data: b.data[:n]}
}

// Transfer copies src into dst. It stands in for a DMA move between pinned
// host memory and device memory; both blocks must have equal element counts.
func Transfer(dst, src *Block) error {
	if dst.Elems() != src.Elems() {
		return fmt.Errorf("device: transfer shape mismatch: %v -> %v", src.dims, dst.dims)
	}
	copy(dst.Data(), src.Data())
	return nil
}

// DoubleBuffer is a two-slot ring of device blocks for one logical array
// role, indexed by iteration parity. In in-memory mode each device slot has
// a paired pinned host slot used to stage transfers; in out-of-core mode
// the pinned slots are absent and slices move directly between the store
// and the device slots.
type DoubleBuffer struct {
	dev    [2]*Block
	pinned [2]*Block
}

// NewDoubleBuffer allocates both device slots (and pinned mirrors when
// withPinned is set) from pool, sized to dims, the maximum chunk shape.
func NewDoubleBuffer(pool *Pool, dims [3]int, withPinned bool) (*DoubleBuffer, error) {
	b := &DoubleBuffer{}
	for i := 0; i < 2; i++ {
		dev, err := pool.Device(dims)
		if err != nil {
			return nil, err
		}
		b.dev[i] = dev
		if withPinned {
			host, err := pool.Pinned(dims)
			if err != nil {
				return nil, err
			}
			b.pinned[i] = host
		}
	}
	return b, nil
}

// Slot returns the device block for logical iteration j.
func (b *DoubleBuffer) Slot(j int) *Block { return b.dev[j&1] }

// PinnedSlot returns the pinned host block for logical iteration j, or nil
// in out-of-core mode.
func (b *DoubleBuffer) PinnedSlot(j int) *Block { return b.pinned[j&1] }
