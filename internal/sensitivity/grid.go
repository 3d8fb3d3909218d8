package sensitivity

import (
	"fmt"
	"math"
)

// gridSlack is the relative slack allowed when checking that the duration is
// a whole number of intervals.
const gridSlack = 1e-9

// maxGridSteps bounds the number of instants, and with it the matrix
// allocation made before integration starts.
const maxGridSteps = 1 << 24

// TimeGrid is a uniform sequence of output instants. Row i of a sensitivity
// matrix holds the state after i+1 intervals.
type TimeGrid struct {
	Start    float64 `yaml:"start" json:"start"`
	Interval float64 `yaml:"interval" json:"interval"`
	Duration float64 `yaml:"duration" json:"duration"`
}

func (g TimeGrid) Validate() error {
	if math.IsNaN(g.Start) || math.IsInf(g.Start, 0) || g.Start < 0 {
		return &ConfigError{Field: "grid.start", Wrapped: fmt.Errorf("%w: start must be finite and >= 0, got %g", ErrInvalidGrid, g.Start)}
	}
	if !(g.Interval > 0) || math.IsInf(g.Interval, 0) {
		return &ConfigError{Field: "grid.interval", Wrapped: fmt.Errorf("%w: interval must be positive, got %g", ErrInvalidGrid, g.Interval)}
	}
	if !(g.Duration > 0) || math.IsInf(g.Duration, 0) {
		return &ConfigError{Field: "grid.duration", Wrapped: fmt.Errorf("%w: duration must be positive, got %g", ErrInvalidGrid, g.Duration)}
	}

	if math.IsInf(g.Start+g.Duration, 0) {
		return &ConfigError{Field: "grid.duration", Wrapped: fmt.Errorf("%w: end time %g + %g overflows", ErrInvalidGrid, g.Start, g.Duration)}
	}

	ratio := g.Duration / g.Interval
	n := math.Round(ratio)
	if math.IsInf(ratio, 0) || n > maxGridSteps {
		return &ConfigError{Field: "grid.interval", Wrapped: fmt.Errorf("%w: %g / %g exceeds %d instants", ErrInvalidGrid, g.Duration, g.Interval, maxGridSteps)}
	}
	if n < 1 || math.Abs(ratio-n) > gridSlack*math.Max(1, n) {
		return &ConfigError{Field: "grid.duration", Wrapped: fmt.Errorf("%w: duration %g is not a whole number of %g intervals", ErrInvalidGrid, g.Duration, g.Interval)}
	}
	return nil
}

// Steps returns the number of grid instants. It assumes a valid grid.
func (g TimeGrid) Steps() int {
	return int(math.Round(g.Duration / g.Interval))
}

// At returns the absolute time of instant i. Times are computed by
// multiplication, not accumulation, so they carry no drift.
func (g TimeGrid) At(i int) float64 {
	return g.Start + float64(i+1)*g.Interval
}

func (g TimeGrid) Times() []float64 {
	times := make([]float64, g.Steps())
	for i := range times {
		times[i] = g.At(i)
	}
	return times
}
