package recon

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/tomostream/tomostream/internal/storage"
)

// Direct is a host-side direct-discretization backprojector. It exists so
// runs produce a volume end to end; a device kernel plugs in through the
// Backprojector interface without touching the pass structure.
type Direct struct {
	// Workers bounds the slice fan-out. Zero means GOMAXPROCS.
	Workers int
}

// Reconstruct backprojects the filtered volume (projections, rows, width)
// into a (rows, width, width) volume, one axial slice per detector row.
func (d *Direct) Reconstruct(ctx context.Context, sino storage.Array, theta []float64) (storage.Array, error) {
	shape := sino.Shape()
	nproj, nz, width := shape[0], shape[1], shape[2]
	if len(theta) != nproj {
		return nil, fmt.Errorf("backprojection: %d angles for %d projections", len(theta), nproj)
	}

	vol := storage.NewMemory(storage.Shape{nz, width, width})

	workers := d.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	sin := make([]float64, nproj)
	cos := make([]float64, nproj)
	for i, th := range theta {
		sin[i], cos[i] = math.Sincos(th)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for z := 0; z < nz; z++ {
		z := z
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return d.reconstructSlice(sino, vol, z, sin, cos)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("backprojection: %w", err)
	}
	return vol, nil
}

// reconstructSlice accumulates one axial slice. The sinogram row range is a
// single-row slice along axis 1, so the buffer is (projections, 1, width).
func (d *Direct) reconstructSlice(sino storage.Array, vol *storage.Memory, z int, sin, cos []float64) error {
	nproj := sino.Shape()[0]
	width := sino.Shape()[2]

	rows := make([]float32, nproj*width)
	if err := sino.ReadSlice(rows, 1, z, 1); err != nil {
		return err
	}

	slice := make([]float32, width*width)
	center := float64(width-1) / 2
	scale := math.Pi / (2 * float64(nproj))

	for p := 0; p < nproj; p++ {
		row := rows[p*width : (p+1)*width]
		for y := 0; y < width; y++ {
			yc := float64(y) - center
			base := y * width
			for x := 0; x < width; x++ {
				xc := float64(x) - center
				s := xc*cos[p] + yc*sin[p] + center
				i := int(math.Floor(s))
				if i < 0 || i >= width-1 {
					continue
				}
				frac := s - float64(i)
				v := float64(row[i])*(1-frac) + float64(row[i+1])*frac
				slice[base+x] += float32(v * scale)
			}
		}
	}
	return vol.WriteSlice(slice, 0, z, 1)
}
