package kinetics

import (
	"math"

	"github.com/san-kum/kinsens/internal/ode"
)

// sensitivityFloor excludes near-empty species from the sensitivity error
// test; their normalized sensitivities are dominated by round-off.
const sensitivityFloor = 1e-6

// augmentedSystem stacks the nominal reactor state and one perturbed copy per
// tracked reaction into a single ODE system.
type augmentedSystem struct {
	mech      *Mechanism
	pressure  float64
	tracked   []int
	blockSize int
	eps       float64
	tol       ode.Tolerance
	sensTol   ode.Tolerance
}

func newAugmentedSystem(mech *Mechanism, pressure float64, tracked []int, opts Options) *augmentedSystem {
	return &augmentedSystem{
		mech:      mech,
		pressure:  pressure,
		tracked:   append([]int(nil), tracked...),
		blockSize: idxSpecies + len(mech.Species),
		eps:       opts.Perturbation,
		tol:       opts.Tolerance,
		sensTol:   opts.SensitivityTolerance,
	}
}

func (s *augmentedSystem) Dim() int { return s.blockSize * (len(s.tracked) + 1) }

// BlockSize reports the size of one reactor copy; copies do not interact.
func (s *augmentedSystem) BlockSize() int { return s.blockSize }

func (s *augmentedSystem) Derive(x ode.State, t float64) ode.State {
	dx := make(ode.State, len(x))
	n := s.blockSize
	s.deriveBlock(x[:n], dx[:n], -1)
	for p, reaction := range s.tracked {
		lo := (p + 1) * n
		s.deriveBlock(x[lo:lo+n], dx[lo:lo+n], reaction)
	}
	return dx
}

// deriveBlock evaluates one reactor copy; perturbed selects the reaction
// whose rate is scaled by 1+eps, or -1 for none.
func (s *augmentedSystem) deriveBlock(x, dx []float64, perturbed int) {
	temp := x[idxTemperature]
	if !(temp > 0) {
		for i := range dx {
			dx[i] = math.NaN()
		}
		return
	}

	moles := totalMoles(x)
	// mol/cm^3 of an ideal gas at (P, T)
	density := s.pressure / (gasConstant * temp) / cm3PerM3
	volume := moles / density // cm^3

	heat := 0.0
	for j := range s.mech.Reactions {
		rxn := &s.mech.Reactions[j]
		k := rxn.A * math.Pow(temp, rxn.B) * math.Exp(-rxn.Ea/(gasConstantCal*temp))
		if j == perturbed {
			k *= 1 + s.eps
		}

		rate := k
		for _, o := range rxn.orders {
			c := math.Max(x[idxSpecies+o.species], 0) / moles * density
			rate *= math.Pow(c, o.coeff)
		}
		progress := rate * volume // mol/s

		for _, st := range rxn.stoich {
			dx[idxSpecies+st.species] += st.coeff * progress
		}
		heat -= rxn.DeltaH * progress
	}

	dx[idxMass] = 0
	dx[idxTemperature] = heat / (moles * s.mech.HeatCapacity)
}

// ErrorNorm applies the state tolerance to every copy and, for perturbed
// copies, the sensitivity tolerance to the implied normalized sensitivity.
func (s *augmentedSystem) ErrorNorm(x, xNew, errEst ode.State) float64 {
	norm := s.tol.Norm(x, xNew, errEst)

	n := s.blockSize
	for p := range s.tracked {
		lo := (p + 1) * n
		for i := idxTemperature; i < n; i++ {
			ref := math.Abs(xNew[i])
			if ref <= sensitivityFloor {
				continue
			}
			scale := s.eps * ref
			sens := math.Abs(xNew[lo+i]-xNew[i]) / scale
			sensErr := math.Abs(errEst[lo+i]-errEst[i]) / scale
			norm = math.Max(norm, sensErr/(s.sensTol.Abs+s.sensTol.Rel*sens))
		}
	}
	return norm
}
