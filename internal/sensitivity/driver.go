package sensitivity

import (
	"context"
	"fmt"
	"math"
)

// ObservableTemperature is the conventional index of gas temperature in an
// integrator's observable vector.
const ObservableTemperature = 1

// Observation is the reactor state exposed for progress reporting.
type Observation struct {
	Temperature    float64 `json:"temperature"`
	Pressure       float64 `json:"pressure"`
	InternalEnergy float64 `json:"internal_energy"`
}

// Integrator is the narrow view of a kinetics engine the Driver needs.
// Implementations are stateful and may only be advanced forward in time.
type Integrator interface {
	AdvanceTo(t float64) error
	Time() float64
	Observe() Observation
	Sensitivity(observable, reaction int) float64
	ReactionName(reaction int) string
	TrackedReactions() int
	ReactionCount() int
}

// ObservableCounter is implemented by integrators that can report how many
// observables they expose, enabling the observable index to be validated.
type ObservableCounter interface {
	Observables() int
}

// StepRecord is emitted to observers after each grid instant.
type StepRecord struct {
	Step  int
	Time  float64
	State Observation
	// Last is the coefficient of the last reaction read at this step.
	Last float64
}

type StepObserver interface {
	OnStep(rec StepRecord)
}

// ObserverFunc adapts a plain function to StepObserver.
type ObserverFunc func(rec StepRecord)

func (f ObserverFunc) OnStep(rec StepRecord) { f(rec) }

type Options struct {
	Grid       TimeGrid
	Reactions  int
	Observable int
}

// Phase is the lifecycle position of a Driver.
type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseAccumulating
	PhaseFrozen
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseAccumulating:
		return "accumulating"
	case PhaseFrozen:
		return "frozen"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

type Driver struct {
	integ     Integrator
	opts      Options
	observers []StepObserver
	phase     Phase
}

func NewDriver(integ Integrator, opts Options) *Driver {
	return &Driver{
		integ:     integ,
		opts:      opts,
		observers: make([]StepObserver, 0),
	}
}

func (d *Driver) AddObserver(o StepObserver) { d.observers = append(d.observers, o) }

func (d *Driver) Phase() Phase { return d.phase }

// Run advances the integrator through every grid instant and returns the
// complete sensitivity matrix. Any failure aborts the run and no matrix is
// returned.
func (d *Driver) Run(ctx context.Context) (*Matrix, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	m := newMatrix(d.opts.Grid.Steps(), d.opts.Reactions)
	if err := d.drive(ctx, m.setRow); err != nil {
		return nil, err
	}
	return m, nil
}

// RunStreaming is Run without the matrix: each row is folded into a running
// max-abs reduction and discarded. It returns one score per reaction.
func (d *Driver) RunStreaming(ctx context.Context) ([]float64, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	acc := NewMaxAbsAccumulator(d.opts.Reactions)
	err := d.drive(ctx, func(_ int, row []float64) { acc.fold(row) })
	if err != nil {
		return nil, err
	}
	return acc.Scores(), nil
}

func (d *Driver) validate() error {
	if d.phase != PhaseEmpty {
		return ErrAlreadyRun
	}
	if err := d.opts.Grid.Validate(); err != nil {
		return err
	}

	r := d.opts.Reactions
	if r <= 0 {
		return &ConfigError{Field: "reactions", Wrapped: fmt.Errorf("%w: must be positive, got %d", ErrReactionCountMismatch, r)}
	}
	if tracked := d.integ.TrackedReactions(); tracked != r {
		return &ConfigError{Field: "reactions", Wrapped: fmt.Errorf("%w: requested %d, integrator tracks %d", ErrReactionCountMismatch, r, tracked)}
	}
	if total := d.integ.ReactionCount(); r > total {
		return &ConfigError{Field: "reactions", Wrapped: fmt.Errorf("%w: requested %d, mechanism has %d", ErrReactionCountMismatch, r, total)}
	}

	obs := d.opts.Observable
	if obs < 0 {
		return &ConfigError{Field: "observable", Wrapped: fmt.Errorf("%w: %d", ErrInvalidObservable, obs)}
	}
	if counter, ok := d.integ.(ObservableCounter); ok && obs >= counter.Observables() {
		return &ConfigError{Field: "observable", Wrapped: fmt.Errorf("%w: %d, integrator exposes %d", ErrInvalidObservable, obs, counter.Observables())}
	}

	if now, first := d.integ.Time(), d.opts.Grid.At(0); now >= first {
		return &ConfigError{Field: "grid.start", Wrapped: fmt.Errorf("%w: integrator at t=%g, first instant %g", ErrNotMonotonic, now, first)}
	}
	return nil
}

func (d *Driver) drive(ctx context.Context, sink func(step int, row []float64)) error {
	d.phase = PhaseAccumulating

	steps := d.opts.Grid.Steps()
	row := make([]float64, d.opts.Reactions)

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			d.phase = PhaseFailed
			return ctx.Err()
		default:
		}

		t := d.opts.Grid.At(i)
		if err := d.integ.AdvanceTo(t); err != nil {
			d.phase = PhaseFailed
			return &IntegrationError{Step: i, Time: t, Wrapped: err}
		}

		for r := range row {
			s := d.integ.Sensitivity(d.opts.Observable, r)
			if math.IsNaN(s) || math.IsInf(s, 0) {
				d.phase = PhaseFailed
				return &IntegrationError{Step: i, Time: t, Wrapped: fmt.Errorf("%w: reaction %d", ErrNonFinite, r)}
			}
			row[r] = s
		}
		sink(i, row)

		rec := StepRecord{
			Step:  i,
			Time:  d.integ.Time(),
			State: d.integ.Observe(),
			Last:  row[len(row)-1],
		}
		for _, obs := range d.observers {
			obs.OnStep(rec)
		}
	}

	d.phase = PhaseFrozen
	return nil
}
