// Package sensitivity drives a stateful kinetics integrator across a fixed
// time grid, accumulates first-order sensitivity coefficients of one
// observable into a dense time-by-reaction matrix, and reduces that matrix to
// a ranked list of reactions.
//
// The pipeline is strictly linear:
//
//	Driver.Run      -> *Matrix            (T rows, R columns, filled in time order)
//	Reduce          -> []ReactionScore    (max |s| over time, one per reaction)
//	Rank            -> RankedList         (score descending, index ascending on ties)
//	SelectTop       -> RankedList         (first min(n, R) entries)
//
// Driver.RunStreaming folds each row into a [MaxAbsAccumulator] instead of
// materializing the matrix; its scores equal Reduce over the matrix Run would
// have produced.
//
// A Driver owns its Integrator for the duration of a run and calls AdvanceTo
// with strictly increasing times. Neither is safe for concurrent use.
package sensitivity
