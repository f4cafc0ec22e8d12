package stage

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomostream/tomostream/internal/device"
)

func block(t *testing.T, pool *device.Pool, dims [3]int, fill func(i int) float32) *device.Block {
	t.Helper()
	b, err := pool.Device(dims)
	require.NoError(t, err)
	if fill != nil {
		data := b.Data()
		for i := range data {
			data[i] = fill(i)
		}
	}
	return b
}

func TestSinoNormalization(t *testing.T) {
	pool := device.NewPool()
	defer pool.Release()

	dims := [3]int{2, 3, 4}
	calDims := [3]int{2, 3, 4}

	// dark = 100 everywhere, flat = 1100, data = dark + 0.5*(flat-dark):
	// transmission 0.5, attenuation ln(2).
	in := block(t, pool, dims, func(int) float32 { return 600 })
	dark := block(t, pool, calDims, func(int) float32 { return 100 })
	flat := block(t, pool, calDims, func(int) float32 { return 1100 })
	out := block(t, pool, dims, nil)

	require.NoError(t, Sino().Apply(context.Background(), in, []*device.Block{dark, flat}, out))
	for _, v := range out.Data() {
		assert.InDelta(t, math.Log(2), float64(v), 1e-5)
	}
}

func TestSinoAveragesCalibrationFrames(t *testing.T) {
	pool := device.NewPool()
	defer pool.Release()

	dims := [3]int{1, 2, 2}
	in := block(t, pool, dims, func(int) float32 { return 600 })
	// Two dark frames averaging to 100, two flats averaging to 1100.
	dark := block(t, pool, [3]int{2, 2, 2}, func(i int) float32 {
		if i < 4 {
			return 50
		}
		return 150
	})
	flat := block(t, pool, [3]int{2, 2, 2}, func(i int) float32 {
		if i < 4 {
			return 1000
		}
		return 1200
	})
	out := block(t, pool, dims, nil)

	require.NoError(t, Sino().Apply(context.Background(), in, []*device.Block{dark, flat}, out))
	for _, v := range out.Data() {
		assert.InDelta(t, math.Log(2), float64(v), 1e-5)
	}
}

func TestSinoClampsDeadPixels(t *testing.T) {
	pool := device.NewPool()
	defer pool.Release()

	dims := [3]int{1, 1, 2}
	in := block(t, pool, dims, func(int) float32 { return 0 }) // below dark
	dark := block(t, pool, [3]int{1, 1, 2}, func(int) float32 { return 100 })
	flat := block(t, pool, [3]int{1, 1, 2}, func(int) float32 { return 1100 })
	out := block(t, pool, dims, nil)

	require.NoError(t, Sino().Apply(context.Background(), in, []*device.Block{dark, flat}, out))
	for _, v := range out.Data() {
		assert.False(t, math.IsInf(float64(v), 0))
		assert.False(t, math.IsNaN(float64(v)))
	}
}

func TestSinoRequiresCalibration(t *testing.T) {
	pool := device.NewPool()
	defer pool.Release()

	dims := [3]int{1, 1, 2}
	in := block(t, pool, dims, nil)
	out := block(t, pool, dims, nil)

	assert.Error(t, Sino().Apply(context.Background(), in, nil, out))
}

func TestProjRemovesDC(t *testing.T) {
	pool := device.NewPool()
	defer pool.Release()

	// A constant row is pure DC; the ramp filter zeroes it.
	dims := [3]int{1, 2, 16}
	in := block(t, pool, dims, func(int) float32 { return 3 })
	out := block(t, pool, dims, nil)

	require.NoError(t, Proj(Ramp).Apply(context.Background(), in, nil, out))
	for _, v := range out.Data() {
		assert.InDelta(t, 0, float64(v), 1e-9)
	}
}

func TestProjPreservesNyquistScaling(t *testing.T) {
	pool := device.NewPool()
	defer pool.Release()

	// The alternating sequence is the pure Nyquist mode; the ramp weights
	// it by exactly 1.
	dims := [3]int{1, 1, 8}
	in := block(t, pool, dims, func(i int) float32 {
		if i%2 == 0 {
			return 1
		}
		return -1
	})
	out := block(t, pool, dims, nil)

	require.NoError(t, Proj(Ramp).Apply(context.Background(), in, nil, out))
	for i, v := range out.Data() {
		assert.InDelta(t, float64(in.Data()[i]), float64(v), 1e-9, "index %d", i)
	}
}

func TestProjSheppLoganDampsHighFrequencies(t *testing.T) {
	pool := device.NewPool()
	defer pool.Release()

	dims := [3]int{1, 1, 8}
	fill := func(i int) float32 {
		if i%2 == 0 {
			return 1
		}
		return -1
	}
	ramp := block(t, pool, dims, fill)
	shepp := block(t, pool, dims, fill)
	outRamp := block(t, pool, dims, nil)
	outShepp := block(t, pool, dims, nil)

	require.NoError(t, Proj(Ramp).Apply(context.Background(), ramp, nil, outRamp))
	require.NoError(t, Proj(SheppLogan).Apply(context.Background(), shepp, nil, outShepp))

	for i := range outRamp.Data() {
		assert.Less(t,
			math.Abs(float64(outShepp.Data()[i])),
			math.Abs(float64(outRamp.Data()[i]))+1e-12, "index %d", i)
	}
}

func TestProjRemainderChunkView(t *testing.T) {
	pool := device.NewPool()
	defer pool.Release()

	full, err := pool.Device([3]int{4, 2, 8})
	require.NoError(t, err)
	out, err := pool.Device([3]int{4, 2, 8})
	require.NoError(t, err)

	// Shorter remainder chunk processed through views over the same slots.
	inView := full.View([3]int{2, 2, 8})
	outView := out.View([3]int{2, 2, 8})
	for i := range inView.Data() {
		inView.Data()[i] = float32(i % 5)
	}

	require.NoError(t, Proj(Ramp).Apply(context.Background(), inView, nil, outView))
	// Elements beyond the view stay untouched.
	for _, v := range out.Data()[outView.Elems():] {
		assert.Zero(t, v)
	}
}
