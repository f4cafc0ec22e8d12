package pipeline

import (
	"context"

	"github.com/tomostream/tomostream/internal/device"
)

// Stage is the computation seam of the pipeline. Apply consumes one input
// chunk (plus any auxiliary chunks, such as calibration frames) and fills
// one output chunk, all device-resident. Implementations run synchronously
// with respect to the channel invoking them, must tolerate remainder-length
// views shorter than the maximum chunk, and must not keep state across
// invocations.
type Stage interface {
	Apply(ctx context.Context, in *device.Block, aux []*device.Block, out *device.Block) error
}

// StageFunc adapts a function to the Stage interface.
type StageFunc func(ctx context.Context, in *device.Block, aux []*device.Block, out *device.Block) error

// Apply implements Stage.
func (f StageFunc) Apply(ctx context.Context, in *device.Block, aux []*device.Block, out *device.Block) error {
	return f(ctx, in, aux, out)
}

// Identity copies the input chunk to the output chunk unchanged. Useful for
// pure data movement passes and round-trip tests.
func Identity() Stage {
	return StageFunc(func(_ context.Context, in *device.Block, _ []*device.Block, out *device.Block) error {
		return device.Transfer(out, in)
	})
}
