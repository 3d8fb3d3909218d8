package integrators

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/kinsens/internal/ode"
)

const (
	// jacobianDelta is the relative column perturbation, about sqrt of
	// machine epsilon.
	jacobianDelta = 1.4901161193847656e-08
	jacobianFloor = 1e-8
)

var errStage = errors.New("rosenbrock stage failed")

// ROS2 is the two-stage, second order, L-stable Rosenbrock method of Verwer
// et al. with a finite-difference Jacobian:
//
//	(I - γhJ) k1 = f(x)
//	(I - γhJ) k2 = f(x + h k1) - 2 k1
//	x' = x + 3/2 h k1 + 1/2 h k2
//
// The local error is estimated against the linearly implicit Euler solution
// x + h k1. Systems are taken to be autonomous.
type ROS2 struct {
	gamma    float64
	safety   float64
	minScale float64
	maxScale float64

	lu mat.LU
}

func NewROS2() *ROS2 {
	return &ROS2{
		gamma:    1 + 1/math.Sqrt2,
		safety:   0.9,
		minScale: 0.2,
		maxScale: 5.0,
	}
}

// Step takes one step of exactly dt. A singular iteration matrix yields an
// invalid state.
func (r *ROS2) Step(sys ode.System, x ode.State, t, dt float64) ode.State {
	xNew, _, err := r.attempt(sys, x, t, dt)
	if err != nil {
		return invalidState(len(x))
	}
	return xNew
}

func (r *ROS2) StepAdaptive(sys ode.System, x ode.State, t, dt float64, tol ode.Tolerance) (ode.State, float64, bool) {
	xNew, errEst, err := r.attempt(sys, x, t, dt)
	if err != nil {
		return x, dt * r.minScale, false
	}

	errRatio := ode.ErrorRatio(sys, tol, x, xNew, errEst)
	if math.IsNaN(errRatio) || math.IsInf(errRatio, 0) || !xNew.IsValid() {
		return xNew, dt * r.minScale, false
	}

	if errRatio > 1 {
		scale := math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.5))
		return xNew, dt * scale, false
	}

	if errRatio == 0 {
		return xNew, dt * r.maxScale, true
	}
	scale := math.Min(r.maxScale, r.safety*math.Pow(errRatio, -0.5))
	return xNew, dt * scale, true
}

func (r *ROS2) attempt(sys ode.System, x ode.State, t, dt float64) (ode.State, ode.State, error) {
	n := len(x)

	f0 := sys.Derive(x, t)
	if !f0.IsValid() {
		return nil, nil, errStage
	}
	jac := jacobian(sys, x, t, f0)

	// W = I - γhJ
	w := mat.NewDense(n, n, nil)
	w.Scale(-r.gamma*dt, jac)
	for i := 0; i < n; i++ {
		w.Set(i, i, w.At(i, i)+1)
	}
	r.lu.Factorize(w)

	k1 := mat.NewVecDense(n, nil)
	if err := r.solve(k1, f0); err != nil {
		return nil, nil, err
	}

	x2 := make(ode.State, n)
	for i := 0; i < n; i++ {
		x2[i] = x[i] + dt*k1.AtVec(i)
	}
	f2 := sys.Derive(x2, t+dt)
	rhs := make([]float64, n)
	for i := 0; i < n; i++ {
		rhs[i] = f2[i] - 2*k1.AtVec(i)
	}

	k2 := mat.NewVecDense(n, nil)
	if err := r.solve(k2, rhs); err != nil {
		return nil, nil, err
	}

	xNew := make(ode.State, n)
	errEst := make(ode.State, n)
	for i := 0; i < n; i++ {
		a, b := k1.AtVec(i), k2.AtVec(i)
		xNew[i] = x[i] + dt*(1.5*a+0.5*b)
		errEst[i] = dt * 0.5 * (a + b)
	}
	return xNew, errEst, nil
}

// solve tolerates an ill-conditioned but nonsingular factorization.
func (r *ROS2) solve(dst *mat.VecDense, b []float64) error {
	err := r.lu.SolveVecTo(dst, false, mat.NewVecDense(len(b), b))
	if err == nil {
		return nil
	}
	var cond mat.Condition
	if errors.As(err, &cond) && !math.IsInf(float64(cond), 1) {
		return nil
	}
	return errStage
}

// jacobian approximates df/dx by forward differences around x, where f0 is
// f(x). Block-diagonal systems are differenced one block column at a time.
func jacobian(sys ode.System, x ode.State, t float64, f0 ode.State) *mat.Dense {
	n := len(x)
	jac := mat.NewDense(n, n, nil)

	block := n
	if b, ok := sys.(ode.BlockSizer); ok {
		if bs := b.BlockSize(); bs > 0 && n%bs == 0 {
			block = bs
		}
	}

	xp := x.Clone()
	deltas := make([]float64, n)
	for c := 0; c < block; c++ {
		for j := c; j < n; j += block {
			xp[j] = x[j] + jacobianDelta*math.Max(math.Abs(x[j]), jacobianFloor)
			deltas[j] = xp[j] - x[j]
		}

		fp := sys.Derive(xp, t)

		for j := c; j < n; j += block {
			lo := j - c
			for i := lo; i < lo+block; i++ {
				jac.Set(i, j, (fp[i]-f0[i])/deltas[j])
			}
			xp[j] = x[j]
		}
	}
	return jac
}

func invalidState(n int) ode.State {
	s := make(ode.State, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
