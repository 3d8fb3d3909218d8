package kinetics

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/kinsens/internal/integrators"
	"github.com/san-kum/kinsens/internal/ode"
	"github.com/san-kum/kinsens/internal/sensitivity"
)

const (
	gasConstant    = 8.314462618 // J/(mol K)
	gasConstantCal = 1.987204259 // cal/(mol K)
	cm3PerM3       = 1e6
)

// State vector layout of one reactor copy.
const (
	idxMass        = 0
	idxTemperature = 1
	idxSpecies     = 2
)

// Conditions are the initial thermodynamic state. Composition is given in
// relative mole amounts and is normalized.
type Conditions struct {
	Temperature float64
	Pressure    float64
	Composition map[string]float64
}

type Options struct {
	Stepper              ode.Stepper
	Tolerance            ode.Tolerance
	SensitivityTolerance ode.Tolerance
	// Perturbation is the relative rate multiplier used for finite differences.
	Perturbation float64
	MaxSteps     int
	// MaxDt bounds internal steps; fixed-step steppers need it to subdivide.
	MaxDt float64
}

func DefaultOptions() Options {
	return Options{
		Stepper:              integrators.NewROS2(),
		Tolerance:            ode.Tolerance{Rel: 1e-6, Abs: 1e-15},
		SensitivityTolerance: ode.Tolerance{Rel: 1e-6, Abs: 1e-6},
		Perturbation:         1e-4,
		MaxSteps:             ode.DefaultMaxSteps,
	}
}

// Reactor is an ideal-gas, constant-pressure, adiabatic batch reactor. It
// satisfies sensitivity.Integrator. Reactions must be tracked before the
// first call to AdvanceTo.
type Reactor struct {
	mech *Mechanism
	cond Conditions
	opts Options

	tracked []int
	sys     *augmentedSystem
	solver  *ode.Solver
	x       ode.State
	t       float64
	started bool
	failed  error

	base     ode.State
	mass     float64 // kg per mole of initial mixture
	enthalpy float64 // J per mole of initial mixture, conserved
}

var _ sensitivity.Integrator = (*Reactor)(nil)

// NewReactor configures a reactor for the mechanism at the given conditions.
func NewReactor(mech *Mechanism, cond Conditions, opts Options) (*Reactor, error) {
	if mech == nil {
		return nil, fmt.Errorf("%w: nil mechanism", ErrInvalidMechanism)
	}
	if !(cond.Temperature > 0) || math.IsInf(cond.Temperature, 0) {
		return nil, fmt.Errorf("%w: temperature %g", ErrInvalidConditions, cond.Temperature)
	}
	if !(cond.Pressure > 0) || math.IsInf(cond.Pressure, 0) {
		return nil, fmt.Errorf("%w: pressure %g", ErrInvalidConditions, cond.Pressure)
	}
	if opts.Stepper == nil {
		opts.Stepper = integrators.NewROS2()
	}
	if !opts.Tolerance.Valid() || !opts.SensitivityTolerance.Valid() {
		return nil, fmt.Errorf("%w: tolerances must be positive", ErrInvalidConditions)
	}
	if !(opts.Perturbation > 0) || opts.Perturbation >= 1 {
		return nil, fmt.Errorf("%w: perturbation must be in (0, 1), got %g", ErrInvalidConditions, opts.Perturbation)
	}

	fractions, err := normalize(mech, cond.Composition)
	if err != nil {
		return nil, err
	}

	base := make(ode.State, idxSpecies+len(mech.Species))
	mass := 0.0
	for k, x := range fractions {
		base[idxSpecies+k] = x
		mass += x * mech.Species[k].MolarMass / 1000
	}
	base[idxMass] = mass
	base[idxTemperature] = cond.Temperature

	return &Reactor{
		mech:     mech,
		cond:     cond,
		opts:     opts,
		tracked:  make([]int, 0),
		base:     base,
		mass:     mass,
		enthalpy: mech.HeatCapacity * cond.Temperature,
	}, nil
}

func normalize(mech *Mechanism, comp map[string]float64) ([]float64, error) {
	fractions := make([]float64, len(mech.Species))
	total := 0.0

	names := make([]string, 0, len(comp))
	for name := range comp {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		amount := comp[name]
		idx, ok := mech.SpeciesIndex(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSpecies, name)
		}
		if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
			return nil, fmt.Errorf("%w: amount of %s is %g", ErrInvalidConditions, name, amount)
		}
		fractions[idx] += amount
		total += amount
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: empty composition", ErrInvalidConditions)
	}
	for i := range fractions {
		fractions[i] /= total
	}
	return fractions, nil
}

// TrackSensitivity registers reaction as the next sensitivity parameter.
func (r *Reactor) TrackSensitivity(reaction int) error {
	if r.started {
		return ErrAlreadyStarted
	}
	if reaction < 0 || reaction >= len(r.mech.Reactions) {
		return fmt.Errorf("%w: %d (mechanism has %d)", ErrUnknownReaction, reaction, len(r.mech.Reactions))
	}
	for _, existing := range r.tracked {
		if existing == reaction {
			return fmt.Errorf("%w: %d", ErrDuplicateParameter, reaction)
		}
	}
	r.tracked = append(r.tracked, reaction)
	return nil
}

func (r *Reactor) start() {
	r.sys = newAugmentedSystem(r.mech, r.cond.Pressure, r.tracked, r.opts)

	n := len(r.base)
	r.x = make(ode.State, n*(len(r.tracked)+1))
	for b := 0; b <= len(r.tracked); b++ {
		copy(r.x[b*n:(b+1)*n], r.base)
	}

	r.solver = ode.NewSolver(r.opts.Stepper, r.opts.Tolerance)
	r.solver.MaxDt = r.opts.MaxDt
	if r.opts.MaxSteps > 0 {
		r.solver.MaxSteps = r.opts.MaxSteps
	}
	r.started = true
}

// AdvanceTo integrates to absolute time t. After a failure the reactor
// refuses further advances.
func (r *Reactor) AdvanceTo(t float64) error {
	if r.failed != nil {
		return fmt.Errorf("%w: %v", ErrReactorFailed, r.failed)
	}
	if !r.started {
		r.start()
	}

	x, err := r.solver.Advance(r.sys, r.x, r.t, t)
	if err != nil {
		r.failed = err
		return fmt.Errorf("kinetics: advance to t=%g: %w", t, err)
	}
	r.x = x
	r.t = t
	return nil
}

func (r *Reactor) Time() float64 { return r.t }

// Steps reports the internal solver steps taken so far.
func (r *Reactor) Steps() int {
	if r.solver == nil {
		return 0
	}
	return r.solver.Steps()
}

func (r *Reactor) current() ode.State {
	if r.x == nil {
		return r.base
	}
	return r.x[:len(r.base)]
}

// Observe reports temperature, pressure and specific internal energy (J/kg).
func (r *Reactor) Observe() sensitivity.Observation {
	x := r.current()
	temp := x[idxTemperature]
	moles := totalMoles(x)
	return sensitivity.Observation{
		Temperature:    temp,
		Pressure:       r.cond.Pressure,
		InternalEnergy: (r.enthalpy - moles*gasConstant*temp) / r.mass,
	}
}

// MoleFractions returns the current composition.
func (r *Reactor) MoleFractions() map[string]float64 {
	x := r.current()
	moles := totalMoles(x)
	out := make(map[string]float64, len(r.mech.Species))
	for k, s := range r.mech.Species {
		out[s.Name] = math.Max(x[idxSpecies+k], 0) / moles
	}
	return out
}

// Observables counts mass, temperature and one mole fraction per species.
func (r *Reactor) Observables() int { return idxSpecies + len(r.mech.Species) }

// Sensitivity returns d ln(y) / d ln(k) for observable y and the reaction
// tracked as parameter p. Mass never changes, so its sensitivity is zero.
func (r *Reactor) Sensitivity(observable, p int) float64 {
	if !r.started || p < 0 || p >= len(r.tracked) || observable <= idxMass || observable >= r.Observables() {
		return 0
	}
	n := len(r.base)
	y := observe(r.x[:n], observable)
	yp := observe(r.x[(p+1)*n:(p+2)*n], observable)
	if y == 0 {
		return 0
	}
	return (yp - y) / (y * r.opts.Perturbation)
}

func observe(block ode.State, observable int) float64 {
	if observable == idxTemperature {
		return block[idxTemperature]
	}
	return math.Max(block[observable], 0) / totalMoles(block)
}

// ReactionName returns the equation of the reaction tracked as parameter p.
func (r *Reactor) ReactionName(p int) string {
	if p < 0 || p >= len(r.tracked) {
		return ""
	}
	return r.mech.Reactions[r.tracked[p]].Equation
}

func (r *Reactor) TrackedReactions() int { return len(r.tracked) }

func (r *Reactor) ReactionCount() int { return len(r.mech.Reactions) }

func totalMoles(x ode.State) float64 {
	sum := 0.0
	for _, n := range x[idxSpecies:] {
		sum += math.Max(n, 0)
	}
	return sum
}
