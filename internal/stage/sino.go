package stage

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/tomostream/tomostream/internal/device"
	"github.com/tomostream/tomostream/internal/pipeline"
)

// transmissionFloor bounds the normalized transmission away from zero so
// the log transform stays finite on dead or saturated pixels.
const transmissionFloor = 1e-6

// Sino returns the sinogram correction stage. Each input chunk holds raw
// projections (projections, rows, width); aux[0] and aux[1] hold the dark
// and flat frame stacks for the same row range. The output is the
// attenuation sinogram -log((data - dark) / (flat - dark)).
func Sino() pipeline.Stage {
	return pipeline.StageFunc(func(_ context.Context, in *device.Block, aux []*device.Block, out *device.Block) error {
		if len(aux) != 2 {
			return fmt.Errorf("sino stage: expected dark and flat aux chunks, got %d", len(aux))
		}
		dark, flat := aux[0], aux[1]

		dims := in.Dims()
		rows, width := dims[1], dims[2]
		if out.Dims() != dims {
			return fmt.Errorf("sino stage: output dims %v do not match input %v", out.Dims(), dims)
		}

		// Frame-averaged calibration planes for this row range.
		darkMean := framesMean(dark, rows*width)
		flatMean := framesMean(flat, rows*width)

		data := in.Data()
		res := out.Data()
		plane := rows * width
		for p := 0; p < dims[0]; p++ {
			base := p * plane
			for i := 0; i < plane; i++ {
				d := darkMean[i]
				denom := flatMean[i] - d
				if denom <= 0 {
					denom = 1
				}
				tr := (float64(data[base+i]) - d) / denom
				if tr < transmissionFloor {
					tr = transmissionFloor
				}
				res[base+i] = float32(-math.Log(tr))
			}
		}
		return nil
	})
}

// framesMean averages a calibration stack over its leading frame axis.
func framesMean(b *device.Block, plane int) []float64 {
	frames := b.Dims()[0]
	data := b.Data()
	mean := make([]float64, plane)
	frame := make([]float64, plane)
	for f := 0; f < frames; f++ {
		base := f * plane
		for i := 0; i < plane; i++ {
			frame[i] = float64(data[base+i])
		}
		floats.Add(mean, frame)
	}
	floats.Scale(1.0/float64(frames), mean)
	return mean
}
