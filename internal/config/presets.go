package config

import "sort"

type Preset struct {
	Description string
	Simulation  *SimulationConfig
	Bench       *BenchConfig
}

var Presets = map[string]Preset{
	"small": {
		Description: "1000 particles in a 0.75 x 0.75 tank",
		Simulation: &SimulationConfig{
			Params: paramsWith(1000, 0.75, 0.75, 900),
			FPS:    60, StepsPerFrame: 2,
		},
	},
	"dam_break": {
		Description: "8000 particles in a 1.5 x 1.5 tank",
		Simulation: &SimulationConfig{
			Params: paramsWith(8000, 1.5, 1.5, 900),
			FPS:    60, StepsPerFrame: 1,
		},
	},
	"large": {
		Description: "20000 particles in a 2.5 x 1.5 tank, ten steps per frame",
		Simulation: &SimulationConfig{
			Params: paramsWith(20000, 2.5, 1.5, 500),
			FPS:    30, StepsPerFrame: 10,
		},
	},
	"bench_quick": {
		Description: "one million integers, ten iterations",
		Bench:       &BenchConfig{InputSize: 1_000_000, Iterations: 10},
	},
}

// Apply copies the preset's sections into cfg.
func (p Preset) Apply(cfg *Config) {
	if p.Simulation != nil {
		budget := cfg.Simulation.StepBudgetMs
		cfg.Simulation = *p.Simulation
		cfg.Simulation.StepBudgetMs = budget
	}
	if p.Bench != nil {
		cfg.Bench = *p.Bench
	}
}

func GetPreset(name string) (Preset, bool) {
	p, ok := Presets[name]
	return p, ok
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
