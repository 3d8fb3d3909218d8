package config

import "sort"

var presets = map[string]func() *Config{
	"stoichiometric": DefaultConfig,
	"lean": func() *Config {
		cfg := DefaultConfig()
		cfg.Composition = map[string]float64{"CH4": 0.5, "O2": 2, "N2": 7.52}
		return cfg
	},
	"rich": func() *Config {
		cfg := DefaultConfig()
		cfg.Composition = map[string]float64{"CH4": 1.5, "O2": 2, "N2": 7.52}
		return cfg
	},
	"hot": func() *Config {
		cfg := DefaultConfig()
		cfg.Temperature = 1800
		cfg.Grid.Duration = 1e-3
		return cfg
	},
	"high-pressure": func() *Config {
		cfg := DefaultConfig()
		cfg.Pressure = 10 * DefaultPressure
		return cfg
	},
	"quick": func() *Config {
		cfg := DefaultConfig()
		cfg.Mechanism = "methane-2step"
		cfg.Grid.Interval = 1e-5
		cfg.Grid.Duration = 5e-4
		cfg.Tolerances.Atol = 1e-12
		cfg.TopN = 3
		return cfg
	},
}

// GetPreset returns a fresh copy of the named preset, or nil.
func GetPreset(name string) *Config {
	fn, ok := presets[name]
	if !ok {
		return nil
	}
	return fn()
}

func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
