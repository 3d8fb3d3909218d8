package ode

import (
	"errors"
	"math"
	"testing"
)

type growth struct{}

func (g *growth) Dim() int { return 1 }

func (g *growth) Derive(x State, t float64) State {
	return State{x[0]}
}

type euler struct{}

func (e *euler) Step(sys System, x State, t, dt float64) State {
	dx := sys.Derive(x, t)
	return State{x[0] + dt*dx[0]}
}

type blowup struct{}

func (b *blowup) Step(sys System, x State, t, dt float64) State {
	return State{math.Inf(1)}
}

type rejectAll struct{}

func (r *rejectAll) Step(sys System, x State, t, dt float64) State { return x }

func (r *rejectAll) StepAdaptive(sys System, x State, t, dt float64, tol Tolerance) (State, float64, bool) {
	return x, dt / 10, false
}

func TestStateIsValid(t *testing.T) {
	if !(State{1, 2, 3}).IsValid() {
		t.Error("finite state reported invalid")
	}
	if (State{1, math.NaN()}).IsValid() {
		t.Error("NaN state reported valid")
	}
	if (State{math.Inf(-1)}).IsValid() {
		t.Error("Inf state reported valid")
	}
}

func TestToleranceNorm(t *testing.T) {
	tol := Tolerance{Rel: 1e-3, Abs: 1e-6}
	x := State{1.0, 0.0}
	xNew := State{2.0, 0.0}
	errEst := State{1e-3, 1e-7}

	// component 0: 1e-3 / (1e-6 + 2e-3) ~ 0.4998; component 1: 1e-7 / 1e-6 = 0.1
	got := tol.Norm(x, xNew, errEst)
	want := 1e-3 / (1e-6 + 2e-3)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("expected %g, got %g", want, got)
	}
}

func TestSolverFixedSubsteps(t *testing.T) {
	solver := NewSolver(&euler{}, Tolerance{Rel: 1e-6, Abs: 1e-9})
	solver.MaxDt = 0.1

	x, err := solver.Advance(&growth{}, State{1}, 0, 1)
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if solver.Steps() != 10 {
		t.Errorf("expected 10 substeps, got %d", solver.Steps())
	}
	want := math.Pow(1.1, 10)
	if math.Abs(x[0]-want) > 1e-9 {
		t.Errorf("expected %f, got %f", want, x[0])
	}
}

func TestSolverErrors(t *testing.T) {
	tests := []struct {
		name    string
		stepper Stepper
		t0, t1  float64
		want    error
	}{
		{"backwards", &euler{}, 1, 0.5, ErrBackwards},
		{"non-finite", &blowup{}, 0, 1, ErrInvalidState},
		{"step collapse", &rejectAll{}, 0, 1, ErrStepTooSmall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			solver := NewSolver(tt.stepper, Tolerance{Rel: 1e-6, Abs: 1e-9})
			x, err := solver.Advance(&growth{}, State{1}, tt.t0, tt.t1)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if x != nil {
				t.Error("expected no state on failure")
			}
			var stepErr *StepError
			if !errors.As(err, &stepErr) {
				t.Error("expected *StepError")
			}
		})
	}
}

func TestSolverZeroSpan(t *testing.T) {
	solver := NewSolver(&blowup{}, Tolerance{Rel: 1e-6, Abs: 1e-9})
	x, err := solver.Advance(&growth{}, State{3}, 2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x[0] != 3 {
		t.Errorf("expected unchanged state, got %v", x)
	}
}
