package reader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomostream/tomostream/internal/storage"
)

func TestPartitionCoversExtent(t *testing.T) {
	for _, workers := range []int{1, 2, 3, 7, 16, 99, 100, 250} {
		ranges := Partition(100, workers)

		next := 0
		for _, r := range ranges {
			assert.Equal(t, next, r.Start, "workers=%d", workers)
			assert.Greater(t, r.End, r.Start, "workers=%d", workers)
			next = r.End
		}
		assert.Equal(t, 100, next, "workers=%d", workers)
		assert.LessOrEqual(t, len(ranges), workers)
	}
}

func TestPartitionDefaults(t *testing.T) {
	ranges := Partition(32, 0)
	assert.Len(t, ranges, DefaultWorkers)
}

// fakeSource produces deterministic row contents and can fail chosen ranges.
type fakeSource struct {
	shape    storage.Shape
	nflat    int
	ndark    int
	failRows map[int]error

	mu    sync.Mutex
	reads []Range
}

func (s *fakeSource) rowValue(row int) float32 { return float32(row + 1) }

func (s *fakeSource) ReadProjections(_ context.Context, dst []float32, start, end int) error {
	s.mu.Lock()
	s.reads = append(s.reads, Range{Start: start, End: end})
	s.mu.Unlock()

	for row := start; row < end; row++ {
		if err, ok := s.failRows[row]; ok {
			return err
		}
		rowElems := s.shape[1] * s.shape[2]
		for i := 0; i < rowElems; i++ {
			dst[(row-start)*rowElems+i] = s.rowValue(row)
		}
	}
	return nil
}

func (s *fakeSource) ReadCalibration(_ context.Context, flat, dark []float32) error {
	for i := range flat {
		flat[i] = 2
	}
	for i := range dark {
		dark[i] = 1
	}
	return nil
}

func TestReadAll(t *testing.T) {
	shape := storage.Shape{10, 4, 3}
	calShape := storage.Shape{2, 4, 3}
	src := &fakeSource{shape: shape}

	dst := storage.NewMemory(shape)
	flat := storage.NewMemory(calShape)
	dark := storage.NewMemory(calShape)

	b := New(src, 3, nil, nil)
	require.NoError(t, b.ReadAll(context.Background(), dst, flat, dark))

	// Workers covered the extent exactly once.
	total := 0
	for _, r := range src.reads {
		total += r.End - r.Start
	}
	assert.Equal(t, shape[0], total)

	// Every row carries its expected value.
	out := make([]float32, shape.Elems())
	require.NoError(t, dst.ReadSlice(out, 0, 0, shape[0]))
	rowElems := shape[1] * shape[2]
	for row := 0; row < shape[0]; row++ {
		for i := 0; i < rowElems; i++ {
			assert.Equal(t, src.rowValue(row), out[row*rowElems+i], "row %d", row)
		}
	}

	cal := make([]float32, calShape.Elems())
	require.NoError(t, flat.ReadSlice(cal, 0, 0, calShape[0]))
	assert.Equal(t, float32(2), cal[0])
	require.NoError(t, dark.ReadSlice(cal, 0, 0, calShape[0]))
	assert.Equal(t, float32(1), cal[0])
}

func TestReadAllWorkerFailure(t *testing.T) {
	shape := storage.Shape{12, 2, 2}
	calShape := storage.Shape{1, 2, 2}
	boom := errors.New("sector unreadable")
	src := &fakeSource{shape: shape, failRows: map[int]error{5: boom}}

	b := New(src, 4, nil, nil)
	err := b.ReadAll(context.Background(),
		storage.NewMemory(shape), storage.NewMemory(calShape), storage.NewMemory(calShape))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var werr *WorkerError
	require.ErrorAs(t, err, &werr)
	// Rows 3-6 belong to worker 1 with 4 workers over 12 rows.
	assert.Equal(t, 1, werr.Worker)
	assert.Equal(t, 3, werr.Start)
	assert.Equal(t, 6, werr.End)
}

func TestReadAllAggregatesAllFailures(t *testing.T) {
	shape := storage.Shape{8, 2, 2}
	calShape := storage.Shape{1, 2, 2}
	first := errors.New("range a failed")
	second := errors.New("range b failed")
	src := &fakeSource{shape: shape, failRows: map[int]error{0: first, 6: second}}

	// Single-row ranges so both failures are independent workers.
	b := New(src, 8, nil, nil)
	err := b.ReadAll(context.Background(),
		storage.NewMemory(shape), storage.NewMemory(calShape), storage.NewMemory(calShape))
	require.Error(t, err)

	// Workers racing cancellation may or may not run, but failures that
	// did occur all surface, in range order.
	assert.ErrorIs(t, err, first)
}

func TestReadAllCalibrationFailure(t *testing.T) {
	shape := storage.Shape{4, 2, 2}
	calShape := storage.Shape{1, 2, 2}
	src := &calFailSource{fakeSource{shape: shape}}

	b := New(src, 2, nil, nil)
	err := b.ReadAll(context.Background(),
		storage.NewMemory(shape), storage.NewMemory(calShape), storage.NewMemory(calShape))
	require.Error(t, err)
	// Calibration failure aborts before any fan-out.
	assert.Empty(t, src.reads)
}

type calFailSource struct {
	fakeSource
}

func (s *calFailSource) ReadCalibration(context.Context, []float32, []float32) error {
	return errors.New("no calibration frames")
}

func TestReadAllContextCanceled(t *testing.T) {
	shape := storage.Shape{4, 2, 2}
	calShape := storage.Shape{1, 2, 2}
	src := &fakeSource{shape: shape}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := New(src, 2, nil, nil)
	// A pre-canceled context still yields a complete, joined outcome
	// rather than a hang.
	err := b.ReadAll(ctx, storage.NewMemory(shape), storage.NewMemory(calShape), storage.NewMemory(calShape))
	_ = err // fakeSource ignores ctx; the join must simply terminate
}

func TestWorkerErrorMessage(t *testing.T) {
	e := &WorkerError{Worker: 2, Start: 30, End: 45, Err: fmt.Errorf("io timeout")}
	assert.Contains(t, e.Error(), "worker 2")
	assert.Contains(t, e.Error(), "30-45")
}
