package sensitivity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGrid indicates non-positive or inconsistent time grid parameters.
	ErrInvalidGrid = errors.New("sensitivity: invalid time grid")

	// ErrReactionCountMismatch indicates the requested reaction count does not
	// match what the integrator tracks.
	ErrReactionCountMismatch = errors.New("sensitivity: reaction count mismatch")

	// ErrInvalidObservable indicates an observable index the integrator does not expose.
	ErrInvalidObservable = errors.New("sensitivity: invalid observable index")

	// ErrNotMonotonic indicates the integrator is already past the first grid instant.
	ErrNotMonotonic = errors.New("sensitivity: integrator time is ahead of the grid")

	// ErrAlreadyRun indicates a Driver was asked to run a second time.
	ErrAlreadyRun = errors.New("sensitivity: driver already ran")

	// ErrIntegration indicates the integrator failed to reach a grid instant.
	ErrIntegration = errors.New("sensitivity: integration failed")

	// ErrNonFinite indicates the integrator produced a NaN or Inf coefficient.
	ErrNonFinite = errors.New("sensitivity: non-finite sensitivity coefficient")

	// ErrLengthMismatch indicates scores and reaction names disagree in length.
	ErrLengthMismatch = errors.New("sensitivity: score and name counts differ")

	// ErrEmptyMatrix indicates a matrix without rows or columns.
	ErrEmptyMatrix = errors.New("sensitivity: empty matrix")

	// ErrIncompleteMatrix indicates a matrix with rows that were never written.
	ErrIncompleteMatrix = errors.New("sensitivity: matrix is not fully populated")

	// ErrNegativeTopN indicates a negative top-N request.
	ErrNegativeTopN = errors.New("sensitivity: top-n must be non-negative")
)

// ConfigError reports a configuration problem detected before integration.
type ConfigError struct {
	Field   string
	Wrapped error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Wrapped)
}

func (e *ConfigError) Unwrap() error {
	return e.Wrapped
}

// IntegrationError wraps an integrator failure with the grid step at which
// it happened. It matches both ErrIntegration and the underlying cause.
type IntegrationError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("step %d (t=%.4e): %v: %v", e.Step, e.Time, ErrIntegration, e.Wrapped)
}

func (e *IntegrationError) Unwrap() []error {
	return []error{ErrIntegration, e.Wrapped}
}

// IsConfigError reports whether err stems from configuration validation.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
