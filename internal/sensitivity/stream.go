package sensitivity

import (
	"fmt"
	"math"
)

// MaxAbsAccumulator keeps the running column-wise maximum of |x| over the rows
// it has observed.
type MaxAbsAccumulator struct {
	max  []float64
	rows int
}

func NewMaxAbsAccumulator(cols int) *MaxAbsAccumulator {
	return &MaxAbsAccumulator{max: make([]float64, cols)}
}

func (a *MaxAbsAccumulator) Observe(row []float64) error {
	if len(row) != len(a.max) {
		return fmt.Errorf("%w: row has %d columns, want %d", ErrLengthMismatch, len(row), len(a.max))
	}
	a.fold(row)
	return nil
}

// fold takes a row already known to have one value per column.
func (a *MaxAbsAccumulator) fold(row []float64) {
	for r, v := range row {
		a.max[r] = math.Max(a.max[r], math.Abs(v))
	}
	a.rows++
}

// Rows returns the number of observed rows.
func (a *MaxAbsAccumulator) Rows() int { return a.rows }

// Scores returns a copy of the current per-column maxima.
func (a *MaxAbsAccumulator) Scores() []float64 {
	out := make([]float64, len(a.max))
	copy(out, a.max)
	return out
}
