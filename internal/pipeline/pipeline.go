package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tomostream/tomostream/internal/chunk"
	"github.com/tomostream/tomostream/internal/device"
	"github.com/tomostream/tomostream/internal/logging"
	"github.com/tomostream/tomostream/internal/monitoring"
	"github.com/tomostream/tomostream/internal/storage"
)

// Stage offsets: each stage lags the one feeding it by one iteration. The
// drain depth past the chunk count equals the deepest offset.
const (
	loadOffset    = 0
	computeOffset = 1
	storeOffset   = 2
)

// Options configures one pipeline pass.
type Options struct {
	// Pass names the pipeline for logs and metric labels, e.g. "sino".
	Pass string
	// Plan partitions Axis of the source and destination arrays.
	Plan chunk.Plan
	// Axis is the chunked axis, 0 or 1.
	Axis int
	// Source is consumed chunk-by-chunk.
	Source storage.Array
	// Aux arrays (e.g. calibration frames) are loaded alongside each input
	// chunk; they must span the plan's extent along Axis.
	Aux []storage.Array
	// Destination receives one flushed chunk per chunk index.
	Destination storage.Array
	// Stage transforms input chunks into output chunks on device.
	Stage Stage
	// Progress is invoked once per iteration. Optional.
	Progress Progress
	Logger   *logging.Logger
	Metrics  *monitoring.Metrics
}

// Pipeline drives the chunked overlap loop for one pass. A Pipeline owns
// its double buffers and channels for the duration of one Run and must not
// be shared across concurrent runs.
type Pipeline struct {
	opts Options

	pool                 *device.Pool
	load, compute, store *device.Channel
	in, out              *device.DoubleBuffer
	aux                  []*device.DoubleBuffer
}

// New validates the pass configuration.
func New(opts Options) (*Pipeline, error) {
	if opts.Stage == nil {
		return nil, fmt.Errorf("pipeline: nil stage")
	}
	if opts.Source == nil || opts.Destination == nil {
		return nil, fmt.Errorf("pipeline: source and destination are required")
	}
	if opts.Axis < 0 || opts.Axis > 1 {
		return nil, fmt.Errorf("pipeline: unsupported chunk axis %d", opts.Axis)
	}
	extent := opts.Plan.Extent()
	if got := opts.Source.Shape()[opts.Axis]; got != extent {
		return nil, fmt.Errorf("pipeline: source extent %d does not match plan extent %d", got, extent)
	}
	if got := opts.Destination.Shape()[opts.Axis]; got != extent {
		return nil, fmt.Errorf("pipeline: destination extent %d does not match plan extent %d", got, extent)
	}
	for i, a := range opts.Aux {
		if got := a.Shape()[opts.Axis]; got != extent {
			return nil, fmt.Errorf("pipeline: aux %d extent %d does not match plan extent %d", i, got, extent)
		}
	}
	if opts.Progress == nil {
		opts.Progress = NopProgress
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewNopMetrics()
	}
	return &Pipeline{opts: opts}, nil
}

// Run executes plan.Count()+2 iterations: a one-iteration prologue where
// only the load channel works, the steady-state overlap, and two drain
// iterations for the trailing compute and store. Cancellation is honored
// at iteration boundaries. All device and pinned allocations are released
// before Run returns, on the abort path included.
func (p *Pipeline) Run(ctx context.Context) error {
	o := &p.opts
	count := o.Plan.Count()

	p.pool = device.NewPool()
	p.load = device.OpenChannel(device.ChannelLoad)
	p.compute = device.OpenChannel(device.ChannelCompute)
	p.store = device.OpenChannel(device.ChannelStore)
	defer func() {
		// Drain in-flight work before dropping the allocations under it.
		p.load.Close()
		p.compute.Close()
		p.store.Close()
		p.pool.Release()
		o.Metrics.PoolElements.Set(0)
		o.Metrics.PipelinesActive.Dec()
	}()
	o.Metrics.PipelinesActive.Inc()

	if err := p.allocate(); err != nil {
		return fmt.Errorf("pipeline %s: %w", o.Pass, err)
	}

	o.Logger.Info("pipeline starting",
		zap.String("pass", o.Pass),
		zap.Int("chunks", count),
		zap.Int("axis", o.Axis),
		zap.String("source", o.Source.Mode().String()),
		zap.String("destination", o.Destination.Mode().String()))

	for k := 0; k <= count+1; k++ {
		if err := ctx.Err(); err != nil {
			o.Logger.Warn("pipeline canceled", zap.String("pass", o.Pass), zap.Int("iteration", k))
			return fmt.Errorf("pipeline %s canceled at iteration %d: %w", o.Pass, k, err)
		}

		if j := k - computeOffset; j >= 0 && j < count {
			p.enqueueCompute(ctx, j)
		}
		if j := k - storeOffset; j >= 0 {
			p.enqueueStore(j)
		}
		if j := k - loadOffset; j < count {
			p.enqueueLoad(j)
		}

		// Barrier. Store first: its slot (and pinned mirror) must be safe
		// before the host copies out and before the slot's next owner
		// enqueues into it.
		if err := p.store.Synchronize(); err != nil {
			return p.abort(k-storeOffset, device.ChannelStore, err)
		}
		if j := k - storeOffset; j >= 0 {
			if err := p.hostFlush(j); err != nil {
				return p.abort(j, device.ChannelStore, err)
			}
			o.Metrics.ChunksProcessed.WithLabelValues(o.Pass).Inc()
		}
		if err := p.load.Synchronize(); err != nil {
			return p.abort(k-loadOffset, device.ChannelLoad, err)
		}
		if err := p.compute.Synchronize(); err != nil {
			return p.abort(k-computeOffset, device.ChannelCompute, err)
		}

		o.Metrics.IterationsTotal.WithLabelValues(o.Pass).Inc()
		o.Progress(k, count)
	}

	o.Logger.Info("pipeline finished", zap.String("pass", o.Pass), zap.Int("chunks", count))
	return nil
}

// allocate sizes every slot to the maximum chunk shape; remainder chunks
// use views, capacity never grows mid-run.
func (p *Pipeline) allocate() error {
	o := &p.opts
	maxLen := o.Plan.MaxLength()

	var err error
	p.in, err = device.NewDoubleBuffer(p.pool, chunkDims(o.Source.Shape(), o.Axis, maxLen),
		o.Source.Mode() == storage.InMemory)
	if err != nil {
		return err
	}
	p.aux = p.aux[:0]
	for _, a := range o.Aux {
		buf, err := device.NewDoubleBuffer(p.pool, chunkDims(a.Shape(), o.Axis, maxLen),
			a.Mode() == storage.InMemory)
		if err != nil {
			return err
		}
		p.aux = append(p.aux, buf)
	}
	p.out, err = device.NewDoubleBuffer(p.pool, chunkDims(o.Destination.Shape(), o.Axis, maxLen),
		o.Destination.Mode() == storage.InMemory)
	if err != nil {
		return err
	}
	o.Metrics.PoolElements.Set(float64(p.pool.AllocatedElems()))
	return nil
}

// enqueueLoad fills the input (and aux) slots for chunk j: through the
// pinned staging slot for in-memory sources, directly into device memory
// for out-of-core sources.
func (p *Pipeline) enqueueLoad(j int) {
	o := &p.opts
	off, n := o.Plan.Offset(j), o.Plan.Length(j)

	p.enqueueFill(p.in, o.Source, j, off, n)
	for i, a := range o.Aux {
		p.enqueueFill(p.aux[i], a, j, off, n)
	}
}

func (p *Pipeline) enqueueFill(buf *device.DoubleBuffer, src storage.Array, j, off, n int) {
	o := &p.opts
	dims := chunkDims(src.Shape(), o.Axis, n)
	dev := buf.Slot(j).View(dims)

	if pinned := buf.PinnedSlot(j); pinned != nil {
		host := pinned.View(dims)
		p.load.Enqueue(func() error {
			defer o.Metrics.ObserveChannel(o.Pass, device.ChannelLoad, time.Now())
			if err := src.ReadSlice(host.Data(), o.Axis, off, n); err != nil {
				return err
			}
			return device.Transfer(dev, host)
		})
		return
	}
	p.load.Enqueue(func() error {
		defer o.Metrics.ObserveChannel(o.Pass, device.ChannelLoad, time.Now())
		return src.ReadSlice(dev.Data(), o.Axis, off, n)
	})
}

// enqueueCompute applies the stage to chunk j, input slot to output slot of
// matching parity.
func (p *Pipeline) enqueueCompute(ctx context.Context, j int) {
	o := &p.opts
	n := o.Plan.Length(j)

	in := p.in.Slot(j).View(chunkDims(o.Source.Shape(), o.Axis, n))
	aux := make([]*device.Block, len(p.aux))
	for i, buf := range p.aux {
		aux[i] = buf.Slot(j).View(chunkDims(o.Aux[i].Shape(), o.Axis, n))
	}
	out := p.out.Slot(j).View(chunkDims(o.Destination.Shape(), o.Axis, n))

	p.compute.Enqueue(func() error {
		defer o.Metrics.ObserveChannel(o.Pass, device.ChannelCompute, time.Now())
		return o.Stage.Apply(ctx, in, aux, out)
	})
}

// enqueueStore flushes the output slot for chunk j. In-memory destinations
// get a device-to-pinned transfer here and the host copy-out after the
// barrier; out-of-core destinations are written directly.
func (p *Pipeline) enqueueStore(j int) {
	o := &p.opts
	off, n := o.Plan.Offset(j), o.Plan.Length(j)
	dims := chunkDims(o.Destination.Shape(), o.Axis, n)
	dev := p.out.Slot(j).View(dims)

	if pinned := p.out.PinnedSlot(j); pinned != nil {
		host := pinned.View(dims)
		p.store.Enqueue(func() error {
			defer o.Metrics.ObserveChannel(o.Pass, device.ChannelStore, time.Now())
			return device.Transfer(host, dev)
		})
		return
	}
	p.store.Enqueue(func() error {
		defer o.Metrics.ObserveChannel(o.Pass, device.ChannelStore, time.Now())
		return o.Destination.WriteSlice(dev.Data(), o.Axis, off, n)
	})
}

// hostFlush copies the now-safe pinned output slot for chunk j into the
// destination. Out-of-core destinations were written on the store channel
// already.
func (p *Pipeline) hostFlush(j int) error {
	o := &p.opts
	pinned := p.out.PinnedSlot(j)
	if pinned == nil {
		return nil
	}
	off, n := o.Plan.Offset(j), o.Plan.Length(j)
	host := pinned.View(chunkDims(o.Destination.Shape(), o.Axis, n))
	return o.Destination.WriteSlice(host.Data(), o.Axis, off, n)
}

func (p *Pipeline) abort(chunkIdx int, channel string, err error) error {
	o := &p.opts
	o.Metrics.PipelineAborts.WithLabelValues(o.Pass, channel).Inc()
	o.Logger.Error("pipeline aborted",
		zap.String("pass", o.Pass),
		zap.String("channel", channel),
		zap.Int("chunk", chunkIdx),
		zap.Error(err))
	return &ChannelError{Pass: o.Pass, Channel: channel, Chunk: chunkIdx, Err: err}
}

func chunkDims(s storage.Shape, axis, n int) [3]int {
	d := [3]int(s)
	d[axis] = n
	return d
}
