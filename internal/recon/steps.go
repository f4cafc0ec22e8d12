package recon

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tomostream/tomostream/internal/chunk"
	"github.com/tomostream/tomostream/internal/config"
	"github.com/tomostream/tomostream/internal/logging"
	"github.com/tomostream/tomostream/internal/monitoring"
	"github.com/tomostream/tomostream/internal/pipeline"
	"github.com/tomostream/tomostream/internal/reader"
	"github.com/tomostream/tomostream/internal/stage"
	"github.com/tomostream/tomostream/internal/storage"
)

// Backprojector consumes the filtered projection volume. It is the seam to
// the reconstruction kernel proper; theta holds one angle per projection,
// in radians.
type Backprojector interface {
	Reconstruct(ctx context.Context, sino storage.Array, theta []float64) (storage.Array, error)
}

// Steps runs the full stepwise reconstruction.
type Steps struct {
	cfg      *config.Config
	src      reader.Source
	backproj Backprojector
	log      *logging.Logger
	metrics  *monitoring.Metrics

	runDir string
}

// NewSteps wires a reconstruction run. backproj may be nil, in which case
// Run returns the filtered projection volume itself.
func NewSteps(cfg *config.Config, src reader.Source, backproj Backprojector, log *logging.Logger, metrics *monitoring.Metrics) *Steps {
	if log == nil {
		log = logging.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewNopMetrics()
	}
	return &Steps{cfg: cfg, src: src, backproj: backproj, log: log, metrics: metrics}
}

// Run executes bulk read, the sinogram pass, the projection pass, and
// backprojection. The returned array is the caller's to consume; all other
// intermediate state is released before Run returns.
func (s *Steps) Run(ctx context.Context) (storage.Array, error) {
	d := s.cfg.Dataset
	shape := storage.Shape{d.Projections, d.Rows, d.Width}
	darkShape := storage.Shape{d.DarkFrames, d.Rows, d.Width}
	flatShape := storage.Shape{d.FlatFrames, d.Rows, d.Width}

	if s.cfg.Scratch.OutOfCore {
		s.runDir = filepath.Join(s.cfg.Scratch.Dir, "run-"+uuid.NewString())
		s.log.Info("using scratch store", zap.String("dir", s.runDir))
		// The run directory only goes away once every store under it has
		// been removed; a returned out-of-core result keeps it alive.
		defer os.Remove(s.runDir) //nolint:errcheck
	}

	s.log.Info("reading data",
		zap.Int("projections", d.Projections),
		zap.Int("rows", d.Rows),
		zap.Int("width", d.Width))

	raw, cleanRaw, err := s.newVolume("raw", shape)
	if err != nil {
		return nil, err
	}
	defer cleanRaw()

	// Calibration stacks are small; they stay in host memory in both modes.
	dark := storage.NewMemory(darkShape)
	flat := storage.NewMemory(flatShape)

	bulk := reader.New(s.src, s.cfg.Reader.Workers, s.log, s.metrics)
	if err := bulk.ReadAll(ctx, raw, flat, dark); err != nil {
		return nil, err
	}

	s.log.Info("processing by chunks in z")
	sinoPlan, err := chunk.NewPlan(d.Rows, s.cfg.Chunks.SinoRows)
	if err != nil {
		return nil, err
	}
	corrected, cleanCorrected, err := s.newVolume("sino", shape)
	if err != nil {
		return nil, err
	}
	defer cleanCorrected()

	if err := s.runPass(ctx, pipeline.Options{
		Pass:        "sino",
		Plan:        sinoPlan,
		Axis:        1,
		Source:      raw,
		Aux:         []storage.Array{dark, flat},
		Destination: corrected,
		Stage:       stage.Sino(),
	}); err != nil {
		return nil, err
	}
	cleanRaw()

	s.log.Info("processing by chunks in angles")
	projPlan, err := chunk.NewPlan(d.Projections, s.cfg.Chunks.Projections)
	if err != nil {
		return nil, err
	}
	filtered, cleanFiltered, err := s.newVolume("proj", shape)
	if err != nil {
		return nil, err
	}

	if err := s.runPass(ctx, pipeline.Options{
		Pass:        "proj",
		Plan:        projPlan,
		Axis:        0,
		Source:      corrected,
		Destination: filtered,
		Stage:       stage.Proj(stage.SheppLogan),
	}); err != nil {
		cleanFiltered()
		return nil, err
	}
	cleanCorrected()

	if s.backproj == nil {
		return filtered, nil
	}

	s.log.Info("backprojection")
	vol, err := s.backproj.Reconstruct(ctx, filtered, s.theta())
	cleanFiltered()
	if err != nil {
		return nil, fmt.Errorf("backprojection: %w", err)
	}
	return vol, nil
}

func (s *Steps) runPass(ctx context.Context, opts pipeline.Options) error {
	opts.Progress = pipeline.LogProgress(s.log, opts.Pass)
	opts.Logger = s.log
	opts.Metrics = s.metrics

	p, err := pipeline.New(opts)
	if err != nil {
		return err
	}
	return p.Run(ctx)
}

// newVolume allocates an intermediate volume in the configured backing
// mode. The returned cleanup is idempotent and removes scratch chunk
// files; for in-memory volumes it is a no-op.
func (s *Steps) newVolume(name string, shape storage.Shape) (storage.Array, func(), error) {
	if !s.cfg.Scratch.OutOfCore {
		return storage.NewMemory(shape), func() {}, nil
	}
	st, err := storage.CreateStore(filepath.Join(s.runDir, name), shape, s.cfg.Chunks.Projections)
	if err != nil {
		return nil, nil, err
	}
	done := false
	cleanup := func() {
		if done {
			return
		}
		done = true
		if err := st.Remove(); err != nil {
			s.log.Warn("scratch cleanup failed", zap.String("volume", name), zap.Error(err))
		}
	}
	return st, cleanup, nil
}

// theta returns evenly spaced projection angles over a half rotation.
func (s *Steps) theta() []float64 {
	n := s.cfg.Dataset.Projections
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) * math.Pi / float64(n)
	}
	return out
}
