package recon

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomostream/tomostream/internal/config"
	"github.com/tomostream/tomostream/internal/storage"
)

const (
	darkLevel = 100
	flatLevel = 1100
)

// diskSource synthesizes projections of a centered absorbing disk. Each
// detector row sees the same disk, so every axial slice reconstructs to the
// same image.
type diskSource struct {
	nproj, nz, width int
	ndark, nflat     int
	calErr           error
}

func (s *diskSource) geometry() *config.Config {
	cfg := config.Default()
	cfg.Dataset.Projections = s.nproj
	cfg.Dataset.Rows = s.nz
	cfg.Dataset.Width = s.width
	cfg.Dataset.DarkFrames = s.ndark
	cfg.Dataset.FlatFrames = s.nflat
	cfg.Chunks.SinoRows = 2
	cfg.Chunks.Projections = 8
	cfg.Reader.Workers = 4
	return cfg
}

func (s *diskSource) ReadCalibration(_ context.Context, flat, dark []float32) error {
	if s.calErr != nil {
		return s.calErr
	}
	for i := range flat {
		flat[i] = flatLevel
	}
	for i := range dark {
		dark[i] = darkLevel
	}
	return nil
}

func (s *diskSource) ReadProjections(_ context.Context, dst []float32, start, end int) error {
	center := float64(s.width-1) / 2
	radius := float64(s.width) / 4
	mu := 1.0 / (2 * radius)
	for p := start; p < end; p++ {
		for z := 0; z < s.nz; z++ {
			base := ((p-start)*s.nz + z) * s.width
			for x := 0; x < s.width; x++ {
				t := float64(x) - center
				path := 0.0
				if math.Abs(t) < radius {
					path = 2 * math.Sqrt(radius*radius-t*t)
				}
				tr := math.Exp(-mu * path)
				dst[base+x] = float32(darkLevel + tr*(flatLevel-darkLevel))
			}
		}
	}
	return nil
}

func readAll(t *testing.T, a storage.Array) []float32 {
	t.Helper()
	buf := make([]float32, a.Shape().Elems())
	require.NoError(t, a.ReadSlice(buf, 0, 0, a.Shape()[0]))
	return buf
}

func TestStepsReconstructsDisk(t *testing.T) {
	src := &diskSource{nproj: 48, nz: 4, width: 32, ndark: 2, nflat: 2}
	steps := NewSteps(src.geometry(), src, &Direct{Workers: 2}, nil, nil)

	vol, err := steps.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, storage.Shape{4, 32, 32}, vol.Shape())

	data := readAll(t, vol)
	slice := data[:32*32] // every slice sees the same phantom
	center := slice[16*32+16]
	corner := slice[2*32+2]
	assert.Greater(t, float64(center), float64(corner),
		"disk interior should reconstruct brighter than background")
	assert.Less(t, math.Abs(float64(corner)), float64(center)/2,
		"background should stay well below the disk interior")
}

func TestStepsFilteredOnly(t *testing.T) {
	src := &diskSource{nproj: 16, nz: 2, width: 16, ndark: 1, nflat: 1}
	steps := NewSteps(src.geometry(), src, nil, nil, nil)

	filtered, err := steps.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.Shape{16, 2, 16}, filtered.Shape())
	assert.Equal(t, storage.InMemory, filtered.Mode())
}

func TestStepsOutOfCoreMatchesInMemory(t *testing.T) {
	src := &diskSource{nproj: 16, nz: 4, width: 16, ndark: 2, nflat: 2}

	mem := NewSteps(src.geometry(), src, nil, nil, nil)
	inMem, err := mem.Run(context.Background())
	require.NoError(t, err)

	cfg := src.geometry()
	cfg.Scratch.OutOfCore = true
	cfg.Scratch.Dir = t.TempDir()
	ooc := NewSteps(cfg, src, nil, nil, nil)
	outOfCore, err := ooc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, storage.OutOfCore, outOfCore.Mode())
	assert.Equal(t, readAll(t, inMem), readAll(t, outOfCore))
}

func TestStepsCleansScratchOnFailure(t *testing.T) {
	calErr := errors.New("detector offline")
	src := &diskSource{nproj: 16, nz: 2, width: 16, ndark: 1, nflat: 1, calErr: calErr}

	cfg := src.geometry()
	cfg.Scratch.OutOfCore = true
	cfg.Scratch.Dir = t.TempDir()
	steps := NewSteps(cfg, src, nil, nil, nil)

	_, err := steps.Run(context.Background())
	require.ErrorIs(t, err, calErr)

	entries, err := os.ReadDir(cfg.Scratch.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory should be cleaned after a failed run")
}

func TestStepsCanceledContext(t *testing.T) {
	src := &diskSource{nproj: 16, nz: 2, width: 16, ndark: 1, nflat: 1}
	steps := NewSteps(src.geometry(), src, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := steps.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDirectRejectsAngleMismatch(t *testing.T) {
	sino := storage.NewMemory(storage.Shape{8, 1, 8})
	_, err := (&Direct{}).Reconstruct(context.Background(), sino, make([]float64, 3))
	assert.Error(t, err)
}
