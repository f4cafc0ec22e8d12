package storage

// Memory is an Array backed by one contiguous host allocation.
type Memory struct {
	shape Shape
	data  []float32
}

// NewMemory allocates a zeroed in-memory array of the given shape.
func NewMemory(shape Shape) *Memory {
	return &Memory{shape: shape, data: make([]float32, shape.Elems())}
}

// WrapMemory adopts an existing backing slice of exactly shape.Elems() elements.
func WrapMemory(shape Shape, data []float32) *Memory {
	if len(data) != shape.Elems() {
		panic("storage: backing slice does not match shape")
	}
	return &Memory{shape: shape, data: data}
}

func (m *Memory) Shape() Shape { return m.shape }

func (m *Memory) Mode() Mode { return InMemory }

// Data exposes the backing slice for the bulk reader's disjoint-range fill.
func (m *Memory) Data() []float32 { return m.data }

func (m *Memory) ReadSlice(dst []float32, axis, off, n int) error {
	if err := checkSlice(m.shape, dst, axis, off, n); err != nil {
		return err
	}
	d1, d2 := m.shape[1], m.shape[2]
	if axis == 0 {
		copy(dst, m.data[off*d1*d2:(off+n)*d1*d2])
		return nil
	}
	// Axis 1 slices are strided: one contiguous run per leading index.
	for i := 0; i < m.shape[0]; i++ {
		src := m.data[(i*d1+off)*d2 : (i*d1+off+n)*d2]
		copy(dst[i*n*d2:(i+1)*n*d2], src)
	}
	return nil
}

func (m *Memory) WriteSlice(src []float32, axis, off, n int) error {
	if err := checkSlice(m.shape, src, axis, off, n); err != nil {
		return err
	}
	d1, d2 := m.shape[1], m.shape[2]
	if axis == 0 {
		copy(m.data[off*d1*d2:(off+n)*d1*d2], src)
		return nil
	}
	for i := 0; i < m.shape[0]; i++ {
		dst := m.data[(i*d1+off)*d2 : (i*d1+off+n)*d2]
		copy(dst, src[i*n*d2:(i+1)*n*d2])
	}
	return nil
}
