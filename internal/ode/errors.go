package ode

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState indicates a state vector containing NaN or Inf.
	ErrInvalidState = errors.New("ode: invalid state (NaN or Inf detected)")

	// ErrStepTooSmall indicates adaptive timestep became too small.
	ErrStepTooSmall = errors.New("ode: adaptive timestep below minimum")

	// ErrTooManySteps indicates the step budget for one advance was exhausted.
	ErrTooManySteps = errors.New("ode: step limit exceeded before reaching target time")

	// ErrBackwards indicates a request to advance to an earlier time.
	ErrBackwards = errors.New("ode: target time precedes current time")
)

// StepError wraps a solver failure with the time at which it happened.
type StepError struct {
	Time    float64
	Dt      float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("t=%.6e dt=%.3e: %v", e.Time, e.Dt, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
