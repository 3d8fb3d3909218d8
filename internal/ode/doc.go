// Package ode provides the numerical primitives used to advance stateful
// systems of ordinary differential equations to an absolute time.
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, t))
//   - [Stepper]: single-step integrator interface
//   - [Solver]: advances a state from t0 to t1, subdividing as needed
//
// A Solver keeps the last accepted step size between calls so that repeated
// advances across a fixed output grid do not restart step-size control.
//
// # Thread Safety
//
// Solver and stepper instances are NOT thread-safe. Each integration owns its
// own Solver.
package ode
