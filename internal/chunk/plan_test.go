package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanPartition(t *testing.T) {
	p, err := NewPlan(10, 4)
	require.NoError(t, err)

	assert.Equal(t, 3, p.Count())
	assert.Equal(t, []int{4, 4, 2}, []int{p.Length(0), p.Length(1), p.Length(2)})
	assert.Equal(t, []int{0, 4, 8}, []int{p.Offset(0), p.Offset(1), p.Offset(2)})
	assert.Equal(t, 4, p.MaxLength())
}

func TestPlanExact(t *testing.T) {
	p, err := NewPlan(12, 4)
	require.NoError(t, err)

	assert.Equal(t, 3, p.Count())
	for i := 0; i < p.Count(); i++ {
		assert.Equal(t, 4, p.Length(i))
	}
}

func TestPlanTargetLargerThanExtent(t *testing.T) {
	p, err := NewPlan(3, 100)
	require.NoError(t, err)

	assert.Equal(t, 1, p.Count())
	assert.Equal(t, 3, p.Length(0))
	assert.Equal(t, 3, p.MaxLength())
}

func TestPlanInvariants(t *testing.T) {
	cases := []struct{ extent, target int }{
		{1, 1}, {7, 3}, {100, 1}, {100, 7}, {1000, 64}, {5, 5},
	}
	for _, tc := range cases {
		p, err := NewPlan(tc.extent, tc.target)
		require.NoError(t, err)

		want := (tc.extent + tc.target - 1) / tc.target
		assert.Equal(t, want, p.Count())

		sum := 0
		for i := 0; i < p.Count(); i++ {
			n := p.Length(i)
			assert.Positive(t, n)
			assert.Equal(t, sum, p.Offset(i))
			sum += n
		}
		assert.Equal(t, tc.extent, sum)
		assert.Equal(t, tc.extent, p.Extent())
	}
}

func TestPlanInvalid(t *testing.T) {
	_, err := NewPlan(0, 4)
	assert.ErrorIs(t, err, ErrInvalidPlan)

	_, err = NewPlan(-3, 4)
	assert.ErrorIs(t, err, ErrInvalidPlan)

	_, err = NewPlan(10, 0)
	assert.ErrorIs(t, err, ErrInvalidPlan)

	_, err = NewPlan(10, -1)
	assert.ErrorIs(t, err, ErrInvalidPlan)
}
