package ode

import "math"

const (
	DefaultMinDt    = 1e-16
	DefaultMaxSteps = 500000
)

// Solver advances a System to absolute target times. With an AdaptiveStepper
// it controls the step size against Tol; with a plain Stepper it takes fixed
// substeps no longer than MaxDt.
type Solver struct {
	Stepper  Stepper
	Tol      Tolerance
	MinDt    float64
	MaxDt    float64
	MaxSteps int

	h     float64
	steps int
}

func NewSolver(stepper Stepper, tol Tolerance) *Solver {
	return &Solver{
		Stepper:  stepper,
		Tol:      tol,
		MinDt:    DefaultMinDt,
		MaxSteps: DefaultMaxSteps,
	}
}

// Steps reports the number of accepted internal steps so far.
func (s *Solver) Steps() int { return s.steps }

// Advance integrates x from t0 to t1 and returns the state at t1.
func (s *Solver) Advance(sys System, x State, t0, t1 float64) (State, error) {
	if t1 < t0 {
		return nil, &StepError{Time: t0, Wrapped: ErrBackwards}
	}
	if t1 == t0 {
		return x.Clone(), nil
	}
	if adaptive, ok := s.Stepper.(AdaptiveStepper); ok {
		return s.advanceAdaptive(adaptive, sys, x, t0, t1)
	}
	return s.advanceFixed(sys, x, t0, t1)
}

func (s *Solver) advanceFixed(sys System, x State, t0, t1 float64) (State, error) {
	span := t1 - t0
	n := 1
	if s.MaxDt > 0 {
		n = int(math.Ceil(span / s.MaxDt))
	}
	dt := span / float64(n)

	t := t0
	for i := 0; i < n; i++ {
		x = s.Stepper.Step(sys, x, t, dt)
		if !x.IsValid() {
			return nil, &StepError{Time: t, Dt: dt, Wrapped: ErrInvalidState}
		}
		t = t0 + float64(i+1)*dt
		s.steps++
	}
	return x, nil
}

func (s *Solver) advanceAdaptive(stepper AdaptiveStepper, sys System, x State, t0, t1 float64) (State, error) {
	h := s.h
	if h <= 0 {
		h = (t1 - t0) / 100
	}
	if s.MaxDt > 0 {
		h = math.Min(h, s.MaxDt)
	}

	t := t0
	for taken := 0; t < t1; taken++ {
		if taken >= s.MaxSteps {
			return nil, &StepError{Time: t, Dt: h, Wrapped: ErrTooManySteps}
		}

		last := false
		dt := h
		if t+dt >= t1 {
			dt = t1 - t
			last = true
		}

		xNew, hNext, accepted := stepper.StepAdaptive(sys, x, t, dt, s.Tol)
		if s.MaxDt > 0 {
			hNext = math.Min(hNext, s.MaxDt)
		}
		if !accepted {
			if hNext < s.MinDt {
				return nil, &StepError{Time: t, Dt: hNext, Wrapped: ErrStepTooSmall}
			}
			h = hNext
			continue
		}
		if !xNew.IsValid() {
			return nil, &StepError{Time: t, Dt: dt, Wrapped: ErrInvalidState}
		}

		x = xNew
		s.steps++
		if last {
			t = t1
		} else {
			t += dt
			h = hNext
		}
	}

	// A shortened final step says nothing about the next one.
	if h > 0 {
		s.h = h
	}
	return x, nil
}
