package ode

import "math"

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

type System interface {
	Derive(x State, t float64) State
	Dim() int
}

// ErrorNormer lets a system weigh the local error estimate of an adaptive
// step itself. A returned value <= 1 accepts the step.
type ErrorNormer interface {
	ErrorNorm(x, xNew, errEst State) float64
}

// BlockSizer is implemented by systems made of independent, equally sized
// blocks. Jacobian builders may then perturb one column of every block at once.
type BlockSizer interface {
	BlockSize() int
}

// ErrorRatio weighs errEst with the system's own ErrorNorm when it has one and
// with tol otherwise.
func ErrorRatio(sys System, tol Tolerance, x, xNew, errEst State) float64 {
	if normer, ok := sys.(ErrorNormer); ok {
		return normer.ErrorNorm(x, xNew, errEst)
	}
	return tol.Norm(x, xNew, errEst)
}

type Stepper interface {
	Step(sys System, x State, t, dt float64) State
}

type AdaptiveStepper interface {
	Stepper
	// StepAdaptive attempts one step of size dt. It returns the candidate
	// state, the suggested next step size and whether the step was accepted.
	StepAdaptive(sys System, x State, t, dt float64, tol Tolerance) (State, float64, bool)
}

// Tolerance is a mixed relative/absolute error bound.
type Tolerance struct {
	Rel float64 `yaml:"rtol" json:"rtol"`
	Abs float64 `yaml:"atol" json:"atol"`
}

func (tol Tolerance) Valid() bool {
	return tol.Rel > 0 && tol.Abs > 0
}

// Norm is the max-norm of errEst scaled by Abs + Rel*max(|x|, |xNew|).
func (tol Tolerance) Norm(x, xNew, errEst State) float64 {
	errMax := 0.0
	for i := range errEst {
		scale := tol.Abs + tol.Rel*math.Max(math.Abs(x[i]), math.Abs(xNew[i]))
		errMax = math.Max(errMax, math.Abs(errEst[i])/scale)
	}
	return errMax
}
