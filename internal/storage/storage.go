package storage

import (
	"errors"
	"fmt"
)

// ErrStore reports a backing-store I/O failure. Such failures are fatal for
// the run; there is no partial-result recovery.
var ErrStore = errors.New("storage failure")

// ErrBounds reports a slice request outside the array extent.
var ErrBounds = errors.New("slice out of bounds")

// Mode tags where an array's backing data lives.
type Mode int

const (
	// InMemory arrays are contiguous host allocations. Transfers to device
	// buffers are staged through pinned memory.
	InMemory Mode = iota
	// OutOfCore arrays live in a chunked directory store. Slices move
	// directly between storage and device buffers without a host copy.
	OutOfCore
)

func (m Mode) String() string {
	if m == OutOfCore {
		return "out-of-core"
	}
	return "in-memory"
}

// Shape is the logical extent of a three-dimensional array, row-major.
type Shape [3]int

// Elems returns the total element count.
func (s Shape) Elems() int { return s[0] * s[1] * s[2] }

// SliceElems returns the element count of a slice of length n along axis.
func (s Shape) SliceElems(axis, n int) int {
	t := s
	t[axis] = n
	return t.Elems()
}

// Array is a chunked float32 volume addressed by slices along axis 0 or 1.
//
// ReadSlice fills dst with the slice [off, off+n) along the given axis;
// WriteSlice stores src into the same range. Both require dst/src to hold
// exactly Shape().SliceElems(axis, n) elements, row-major with the sliced
// axis restricted to the requested range.
type Array interface {
	Shape() Shape
	Mode() Mode
	ReadSlice(dst []float32, axis, off, n int) error
	WriteSlice(src []float32, axis, off, n int) error
}

func checkSlice(shape Shape, buf []float32, axis, off, n int) error {
	if axis < 0 || axis > 1 {
		return fmt.Errorf("%w: axis %d", ErrBounds, axis)
	}
	if off < 0 || n <= 0 || off+n > shape[axis] {
		return fmt.Errorf("%w: [%d:%d) along axis %d of %v", ErrBounds, off, off+n, axis, shape)
	}
	if want := shape.SliceElems(axis, n); len(buf) != want {
		return fmt.Errorf("%w: buffer holds %d elements, slice needs %d", ErrBounds, len(buf), want)
	}
	return nil
}
