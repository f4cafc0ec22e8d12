package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tomostream/tomostream/internal/logging"
	"github.com/tomostream/tomostream/internal/monitoring"
	"github.com/tomostream/tomostream/internal/storage"
)

// DefaultWorkers is the fan-out used when no worker count is configured.
const DefaultWorkers = 16

// Source delivers detector data. It is the seam to the acquisition format;
// implementations must support concurrent ReadProjections calls on
// disjoint ranges.
type Source interface {
	// ReadProjections fills dst with projection rows [start, end),
	// row-major over the full detector extent.
	ReadProjections(ctx context.Context, dst []float32, start, end int) error
	// ReadCalibration fills the flat and dark frame stacks.
	ReadCalibration(ctx context.Context, flat, dark []float32) error
}

// WorkerError reports which worker range failed during the fan-out.
type WorkerError struct {
	Worker     int
	Start, End int
	Err        error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("bulk read worker %d (rows %d-%d): %v", e.Worker, e.Start, e.End, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// Range is one worker's contiguous sub-range of the projection axis.
type Range struct {
	Start, End int
}

// Partition divides extent into up to workers contiguous ranges of
// ceil(extent/workers) rows. Ranges are disjoint, cover the extent
// exactly, and empty trailing ranges are omitted.
func Partition(extent, workers int) []Range {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	per := (extent + workers - 1) / workers
	var out []Range
	for start := 0; start < extent; start += per {
		end := start + per
		if end > extent {
			end = extent
		}
		out = append(out, Range{Start: start, End: end})
	}
	return out
}

// Bulk fans a full-volume read out across worker goroutines.
type Bulk struct {
	src     Source
	workers int
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a bulk reader over src.
func New(src Source, workers int, log *logging.Logger, metrics *monitoring.Metrics) *Bulk {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = logging.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewNopMetrics()
	}
	return &Bulk{src: src, workers: workers, log: log, metrics: metrics}
}

// ReadAll reads the calibration frames synchronously, then the projection
// volume in parallel. On any worker failure the destination must be
// treated as invalid; the returned error aggregates every failed range in
// range order.
func (b *Bulk) ReadAll(ctx context.Context, dst, flat, dark storage.Array) error {
	start := time.Now()
	defer func() { b.metrics.BulkReadDuration.Observe(time.Since(start).Seconds()) }()

	flatBuf := make([]float32, flat.Shape().Elems())
	darkBuf := make([]float32, dark.Shape().Elems())
	if err := b.src.ReadCalibration(ctx, flatBuf, darkBuf); err != nil {
		return fmt.Errorf("calibration read: %w", err)
	}
	if err := flat.WriteSlice(flatBuf, 0, 0, flat.Shape()[0]); err != nil {
		return fmt.Errorf("calibration store: %w", err)
	}
	if err := dark.WriteSlice(darkBuf, 0, 0, dark.Shape()[0]); err != nil {
		return fmt.Errorf("calibration store: %w", err)
	}

	ranges := Partition(dst.Shape()[0], b.workers)
	b.log.Info("bulk read starting",
		zap.Int("rows", dst.Shape()[0]),
		zap.Int("workers", len(ranges)))
	b.metrics.BulkReadWorkers.Set(float64(len(ranges)))
	defer b.metrics.BulkReadWorkers.Set(0)

	// Every worker outcome lands in its own slot; the first failure also
	// cancels the group so the rest stop early.
	errs := make([]error, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	for w, r := range ranges {
		w, r := w, r
		g.Go(func() error {
			errs[w] = b.readRange(gctx, dst, w, r)
			return errs[w]
		})
	}
	g.Wait() //nolint:errcheck // individual outcomes are joined below

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("bulk read: %w", err)
	}
	b.log.Info("bulk read finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (b *Bulk) readRange(ctx context.Context, dst storage.Array, w int, r Range) error {
	buf := make([]float32, dst.Shape().SliceElems(0, r.End-r.Start))
	if err := b.src.ReadProjections(ctx, buf, r.Start, r.End); err != nil {
		return &WorkerError{Worker: w, Start: r.Start, End: r.End, Err: err}
	}
	if err := dst.WriteSlice(buf, 0, r.Start, r.End-r.Start); err != nil {
		return &WorkerError{Worker: w, Start: r.Start, End: r.End, Err: err}
	}
	return nil
}
