package experiment

import (
	"fmt"
	"os"
	"sort"

	"github.com/san-kum/kinsens/internal/integrators"
	"github.com/san-kum/kinsens/internal/kinetics"
	"github.com/san-kum/kinsens/internal/ode"
)

type Registry struct {
	steppers map[string]func() ode.Stepper
}

func NewRegistry() *Registry {
	r := &Registry{
		steppers: make(map[string]func() ode.Stepper),
	}

	r.steppers["ros2"] = func() ode.Stepper { return integrators.NewROS2() }
	r.steppers["rk45"] = func() ode.Stepper { return integrators.NewRK45() }
	r.steppers["rk4"] = func() ode.Stepper { return integrators.NewRK4() }

	return r
}

// GetMechanism resolves a built-in mechanism name or a path to a YAML
// mechanism file.
func (r *Registry) GetMechanism(name string) (*kinetics.Mechanism, error) {
	for _, builtin := range kinetics.BuiltinNames() {
		if builtin == name {
			return kinetics.Builtin(name)
		}
	}
	if _, err := os.Stat(name); err == nil {
		return kinetics.LoadMechanism(name)
	}
	return nil, fmt.Errorf("%w: %s is neither built in nor a readable file", kinetics.ErrUnknownMechanism, name)
}

func (r *Registry) GetStepper(name string) (ode.Stepper, error) {
	fn, ok := r.steppers[name]
	if !ok {
		return nil, fmt.Errorf("unknown stepper: %s", name)
	}
	return fn(), nil
}

func (r *Registry) ListMechanisms() []string {
	return kinetics.BuiltinNames()
}

func (r *Registry) ListSteppers() []string {
	names := make([]string, 0, len(r.steppers))
	for name := range r.steppers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
