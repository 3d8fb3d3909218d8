package config

import (
	"errors"
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/kinsens/internal/sensitivity"
)

const (
	DefaultMechanism    = "methane-global"
	DefaultTemperature  = 1500.0   // K
	DefaultPressure     = 101325.0 // Pa
	DefaultInterval     = 5e-6     // s
	DefaultDuration     = 2e-3     // s
	DefaultRtol         = 1e-6
	DefaultAtol         = 1e-15
	DefaultRtolSens     = 1e-6
	DefaultAtolSens     = 1e-6
	DefaultStepper      = "ros2"
	DefaultTopN         = 10
	DefaultPerturbation = 1e-4
)

var ErrInvalidConfig = errors.New("config: invalid value")

type Config struct {
	Mechanism    string               `yaml:"mechanism" json:"mechanism"`
	Temperature  float64              `yaml:"temperature" json:"temperature"`
	Pressure     float64              `yaml:"pressure" json:"pressure"`
	Composition  map[string]float64   `yaml:"composition" json:"composition"`
	Grid         sensitivity.TimeGrid `yaml:"grid" json:"grid"`
	Tolerances   ToleranceConfig      `yaml:"tolerances" json:"tolerances"`
	Stepper      string               `yaml:"stepper" json:"stepper"`
	MaxDt        float64              `yaml:"max_dt,omitempty" json:"max_dt,omitempty"`
	Observable   int                  `yaml:"observable" json:"observable"`
	Reactions    int                  `yaml:"reactions" json:"reactions"`
	TopN         int                  `yaml:"top_n" json:"top_n"`
	Perturbation float64              `yaml:"perturbation" json:"perturbation"`
	Stream       bool                 `yaml:"stream" json:"stream"`
}

type ToleranceConfig struct {
	Rtol            float64 `yaml:"rtol" json:"rtol"`
	Atol            float64 `yaml:"atol" json:"atol"`
	RtolSensitivity float64 `yaml:"rtol_sensitivity" json:"rtol_sensitivity"`
	AtolSensitivity float64 `yaml:"atol_sensitivity" json:"atol_sensitivity"`
}

func DefaultComposition() map[string]float64 {
	return map[string]float64{"CH4": 1, "O2": 2, "N2": 7.52}
}

func DefaultConfig() *Config {
	return &Config{
		Mechanism:   DefaultMechanism,
		Temperature: DefaultTemperature,
		Pressure:    DefaultPressure,
		Composition: DefaultComposition(),
		Grid: sensitivity.TimeGrid{
			Start:    0,
			Interval: DefaultInterval,
			Duration: DefaultDuration,
		},
		Tolerances: ToleranceConfig{
			Rtol:            DefaultRtol,
			Atol:            DefaultAtol,
			RtolSensitivity: DefaultRtolSens,
			AtolSensitivity: DefaultAtolSens,
		},
		Stepper:      DefaultStepper,
		Observable:   sensitivity.ObservableTemperature,
		TopN:         DefaultTopN,
		Perturbation: DefaultPerturbation,
	}
}

// Load reads a YAML file over the defaults, so omitted keys keep their
// default values. A composition given in the file replaces the default one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.Composition = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Composition == nil {
		cfg.Composition = DefaultComposition()
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Composition = maps.Clone(c.Composition)
	return &cp
}

// Validate checks everything that can be checked without loading the
// mechanism. Mechanism-dependent limits are enforced by the driver.
func (c *Config) Validate() error {
	if c.Mechanism == "" {
		return invalid("mechanism", "must not be empty")
	}
	if !(c.Temperature > 0) {
		return invalid("temperature", "must be positive, got %g", c.Temperature)
	}
	if !(c.Pressure > 0) {
		return invalid("pressure", "must be positive, got %g", c.Pressure)
	}
	if len(c.Composition) == 0 {
		return invalid("composition", "must name at least one species")
	}
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	tol := c.Tolerances
	if !(tol.Rtol > 0) || !(tol.Atol > 0) {
		return invalid("tolerances", "rtol and atol must be positive")
	}
	if !(tol.RtolSensitivity > 0) || !(tol.AtolSensitivity > 0) {
		return invalid("tolerances", "rtol_sensitivity and atol_sensitivity must be positive")
	}
	switch c.Stepper {
	case "ros2", "rk45", "rk4":
	default:
		return invalid("stepper", "unknown stepper %q (ros2, rk45, rk4)", c.Stepper)
	}
	if c.Stepper == "rk4" && !(c.MaxDt > 0) {
		return invalid("max_dt", "the fixed-step rk4 stepper needs a positive max_dt")
	}
	if c.MaxDt < 0 {
		return invalid("max_dt", "must not be negative, got %g", c.MaxDt)
	}
	if c.Observable < 0 {
		return invalid("observable", "must not be negative, got %d", c.Observable)
	}
	if c.Reactions < 0 {
		return invalid("reactions", "must not be negative, got %d", c.Reactions)
	}
	if c.TopN < 0 {
		return invalid("top_n", "must not be negative, got %d", c.TopN)
	}
	if !(c.Perturbation > 0) || c.Perturbation >= 1 {
		return invalid("perturbation", "must be in (0, 1), got %g", c.Perturbation)
	}
	return nil
}

func invalid(field, format string, args ...any) error {
	return &sensitivity.ConfigError{
		Field:   field,
		Wrapped: fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...),
	}
}
