package chunk

import (
	"errors"
	"fmt"
)

// ErrInvalidPlan reports a malformed chunking request. It is detected at
// construction, never during a pipeline run.
var ErrInvalidPlan = errors.New("invalid chunk plan")

// Plan is an immutable partition of one axis extent into contiguous chunks.
type Plan struct {
	extent  int
	target  int
	lengths []int
}

// NewPlan partitions extent into ceil(extent/target) chunks of length target,
// with the final chunk taking the remainder.
func NewPlan(extent, target int) (Plan, error) {
	if extent <= 0 {
		return Plan{}, fmt.Errorf("%w: extent %d", ErrInvalidPlan, extent)
	}
	if target <= 0 {
		return Plan{}, fmt.Errorf("%w: target length %d", ErrInvalidPlan, target)
	}
	if target > extent {
		target = extent
	}

	count := (extent + target - 1) / target
	lengths := make([]int, count)
	for i := range lengths {
		lengths[i] = target
	}
	lengths[count-1] = extent - (count-1)*target

	return Plan{extent: extent, target: target, lengths: lengths}, nil
}

// Count returns the number of chunks.
func (p Plan) Count() int { return len(p.lengths) }

// Extent returns the total partitioned extent.
func (p Plan) Extent() int { return p.extent }

// Length returns the length of chunk i.
func (p Plan) Length(i int) int { return p.lengths[i] }

// Offset returns the starting position of chunk i along the axis.
func (p Plan) Offset(i int) int { return i * p.target }

// MaxLength returns the largest chunk length, used to size buffer slots.
func (p Plan) MaxLength() int { return p.target }

func (p Plan) String() string {
	return fmt.Sprintf("plan{extent=%d chunks=%d target=%d}", p.extent, len(p.lengths), p.target)
}
