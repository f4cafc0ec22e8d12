package stage

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/tomostream/tomostream/internal/device"
	"github.com/tomostream/tomostream/internal/pipeline"
)

// Filter selects the frequency weighting applied by the projection stage.
type Filter int

const (
	// Ramp is the unmodified |f| weighting of filtered backprojection.
	Ramp Filter = iota
	// SheppLogan multiplies the ramp by a sinc rolloff to damp the
	// highest frequencies.
	SheppLogan
)

// Proj returns the projection correction stage: every detector row is
// filtered in the frequency domain with the selected weighting. Input and
// output chunks share dimensions (projections, rows, width).
func Proj(filter Filter) pipeline.Stage {
	return pipeline.StageFunc(func(_ context.Context, in *device.Block, _ []*device.Block, out *device.Block) error {
		dims := in.Dims()
		if out.Dims() != dims {
			return fmt.Errorf("proj stage: output dims %v do not match input %v", out.Dims(), dims)
		}
		width := dims[2]
		rows := dims[0] * dims[1]

		fft := fourier.NewFFT(width)
		weights := filterWeights(filter, fft.Len())
		seq := make([]float64, width)
		coeff := make([]complex128, width/2+1)

		data := in.Data()
		res := out.Data()
		for r := 0; r < rows; r++ {
			base := r * width
			for i := 0; i < width; i++ {
				seq[i] = float64(data[base+i])
			}
			fft.Coefficients(coeff, seq)
			for i := range coeff {
				coeff[i] *= complex(weights[i], 0)
			}
			fft.Sequence(seq, coeff)
			// fft.Sequence returns the unnormalized inverse.
			norm := 1.0 / float64(width)
			for i := 0; i < width; i++ {
				res[base+i] = float32(seq[i] * norm)
			}
		}
		return nil
	})
}

// filterWeights builds the per-bin weighting for a real FFT of length n.
func filterWeights(filter Filter, n int) []float64 {
	bins := n/2 + 1
	w := make([]float64, bins)
	if bins == 1 {
		return w
	}
	nyquist := float64(bins - 1)
	for i := 1; i < bins; i++ {
		f := float64(i) / nyquist
		switch filter {
		case SheppLogan:
			x := math.Pi / 2 * f
			w[i] = f * math.Sin(x) / x
		default:
			w[i] = f
		}
	}
	return w
}
