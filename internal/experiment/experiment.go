package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/kinsens/internal/config"
	"github.com/san-kum/kinsens/internal/kinetics"
	"github.com/san-kum/kinsens/internal/ode"
	"github.com/san-kum/kinsens/internal/report"
	"github.com/san-kum/kinsens/internal/sensitivity"
	"github.com/san-kum/kinsens/internal/storage"
)

// Result is the outcome of one analysis. Matrix is nil for streamed runs.
type Result struct {
	Reactions  []string
	Scores     []sensitivity.ReactionScore
	Ranking    sensitivity.RankedList
	Top        sensitivity.RankedList
	Matrix     *sensitivity.Matrix
	Trajectory *sensitivity.Trajectory
	Steps      int
	Elapsed    time.Duration
}

type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	mech      *kinetics.Mechanism
	reactor   *kinetics.Reactor
	driver    *sensitivity.Driver
	traj      *sensitivity.Trajectory
	observers []sensitivity.StepObserver
}

func New(cfg *config.Config, registry *Registry) *Experiment {
	return &Experiment{
		cfg:       cfg,
		registry:  registry,
		observers: make([]sensitivity.StepObserver, 0),
	}
}

// AddObserver registers an extra per-step observer. Call before Setup.
func (e *Experiment) AddObserver(o sensitivity.StepObserver) {
	e.observers = append(e.observers, o)
}

// Setup validates the configuration, builds the reactor and registers the
// tracked reactions with it.
func (e *Experiment) Setup() error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	mech, err := e.registry.GetMechanism(e.cfg.Mechanism)
	if err != nil {
		return &sensitivity.ConfigError{Field: "mechanism", Wrapped: err}
	}
	stepper, err := e.registry.GetStepper(e.cfg.Stepper)
	if err != nil {
		return &sensitivity.ConfigError{Field: "stepper", Wrapped: err}
	}

	reactions := e.cfg.Reactions
	if reactions == 0 {
		reactions = len(mech.Reactions)
	}
	if reactions > len(mech.Reactions) {
		return &sensitivity.ConfigError{
			Field:   "reactions",
			Wrapped: fmt.Errorf("%w: requested %d, %s has %d", sensitivity.ErrReactionCountMismatch, reactions, mech.Name, len(mech.Reactions)),
		}
	}

	tol := e.cfg.Tolerances
	reactor, err := kinetics.NewReactor(mech, kinetics.Conditions{
		Temperature: e.cfg.Temperature,
		Pressure:    e.cfg.Pressure,
		Composition: e.cfg.Composition,
	}, kinetics.Options{
		Stepper:              stepper,
		Tolerance:            ode.Tolerance{Rel: tol.Rtol, Abs: tol.Atol},
		SensitivityTolerance: ode.Tolerance{Rel: tol.RtolSensitivity, Abs: tol.AtolSensitivity},
		Perturbation:         e.cfg.Perturbation,
		MaxSteps:             ode.DefaultMaxSteps,
		MaxDt:                e.cfg.MaxDt,
	})
	if err != nil {
		return &sensitivity.ConfigError{Field: "conditions", Wrapped: err}
	}
	for i := 0; i < reactions; i++ {
		if err := reactor.TrackSensitivity(i); err != nil {
			return err
		}
	}

	e.mech = mech
	e.reactor = reactor
	e.traj = sensitivity.NewTrajectory(e.cfg.Grid.Steps())
	e.driver = sensitivity.NewDriver(reactor, sensitivity.Options{
		Grid:       e.cfg.Grid,
		Reactions:  reactions,
		Observable: e.cfg.Observable,
	})
	e.driver.AddObserver(sensitivity.NewLogObserver())
	e.driver.AddObserver(e.traj)
	for _, o := range e.observers {
		e.driver.AddObserver(o)
	}

	logrus.WithFields(logrus.Fields{
		"mechanism": mech.Name,
		"species":   len(mech.Species),
		"reactions": reactions,
		"steps":     e.cfg.Grid.Steps(),
		"stepper":   e.cfg.Stepper,
	}).Info("experiment configured")
	return nil
}

// Run drives the reactor over the grid and ranks the reactions.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	if e.driver == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	start := time.Now()
	names := sensitivity.ReactionNames(e.reactor, e.reactor.TrackedReactions())
	res := &Result{Reactions: names, Trajectory: e.traj}

	var err error
	if e.cfg.Stream {
		var values []float64
		if values, err = e.driver.RunStreaming(ctx); err == nil {
			res.Scores, err = sensitivity.ScoresFromValues(values, names)
		}
	} else {
		if res.Matrix, err = e.driver.Run(ctx); err == nil {
			res.Scores, err = sensitivity.Reduce(res.Matrix, names)
		}
	}
	if err != nil {
		return nil, err
	}

	res.Ranking = sensitivity.Rank(res.Scores)
	if res.Top, err = sensitivity.SelectTop(res.Ranking, e.cfg.TopN); err != nil {
		return nil, err
	}
	res.Steps = e.reactor.Steps()
	res.Elapsed = time.Since(start)

	logrus.WithFields(logrus.Fields{
		"solver_steps": res.Steps,
		"elapsed":      res.Elapsed.Round(time.Millisecond),
		"final_T":      e.reactor.Observe().Temperature,
	}).Info("analysis complete")
	return res, nil
}

// ObservableName names the observable the sensitivities refer to. It works
// before Setup, resolving the mechanism when a species is observed.
func (e *Experiment) ObservableName() string {
	if e.mech == nil && e.cfg.Observable >= 2 {
		if mech, err := e.registry.GetMechanism(e.cfg.Mechanism); err == nil {
			e.mech = mech
		}
	}
	switch obs := e.cfg.Observable; {
	case obs == 0:
		return "Mass"
	case obs == sensitivity.ObservableTemperature:
		return "Temperature"
	case e.mech != nil && obs-2 < len(e.mech.Species):
		return e.mech.Species[obs-2].Name
	default:
		return fmt.Sprintf("observable %d", obs)
	}
}

func (e *Experiment) Labels() report.Labels {
	labels := report.DefaultLabels()
	labels.Title = "Sensitivity Analysis on " + e.ObservableName()
	return labels
}

func (e *Experiment) Conditions() report.Conditions {
	return report.Conditions{Temperature: e.cfg.Temperature, Pressure: e.cfg.Pressure}
}

// Report renders the selected reactions. A render failure is logged and
// returned; res is left untouched.
func (e *Experiment) Report(sink report.Sink, res *Result) error {
	if err := report.Report(sink, res.Top, e.Labels(), e.Conditions()); err != nil {
		logrus.WithError(err).Warn("sensitivity chart could not be rendered")
		return err
	}
	return nil
}

// Save persists the run and returns its id.
func (e *Experiment) Save(st *storage.Store, res *Result) (string, error) {
	return st.Save(&storage.Run{
		Config:     e.cfg,
		Reactions:  res.Reactions,
		Ranking:    res.Ranking,
		Matrix:     res.Matrix,
		Trajectory: res.Trajectory,
		Elapsed:    res.Elapsed,
	})
}
