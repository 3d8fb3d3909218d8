package kinetics

import "errors"

var (
	// ErrUnknownMechanism indicates a built-in mechanism name that does not exist.
	ErrUnknownMechanism = errors.New("kinetics: unknown mechanism")

	// ErrInvalidMechanism indicates a mechanism that fails validation.
	ErrInvalidMechanism = errors.New("kinetics: invalid mechanism")

	// ErrUnknownSpecies indicates a species name absent from the mechanism.
	ErrUnknownSpecies = errors.New("kinetics: unknown species")

	// ErrInvalidConditions indicates non-physical initial conditions.
	ErrInvalidConditions = errors.New("kinetics: invalid initial conditions")

	// ErrUnknownReaction indicates a reaction index outside the mechanism.
	ErrUnknownReaction = errors.New("kinetics: reaction index out of range")

	// ErrDuplicateParameter indicates a reaction tracked twice.
	ErrDuplicateParameter = errors.New("kinetics: reaction already tracked")

	// ErrAlreadyStarted indicates a configuration change after integration began.
	ErrAlreadyStarted = errors.New("kinetics: reactor already integrating")

	// ErrReactorFailed indicates a reactor that previously failed to advance.
	ErrReactorFailed = errors.New("kinetics: reactor is in a failed state")
)
