package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/fluidhost/internal/compute"
	"github.com/san-kum/fluidhost/internal/logging"
	"github.com/san-kum/fluidhost/internal/pool"
	"github.com/san-kum/fluidhost/internal/shim"
)

const (
	DefaultFPS           = 60
	DefaultStepsPerFrame = 1
	DefaultBenchInput    = 10_000_000
	DefaultIterations    = 100
)

type Config struct {
	Engine string `yaml:"engine"`

	// Image is "builtin", a file path or an http(s) URL.
	Image string `yaml:"image"`

	// Origin, when set, is probed for cross-origin isolation headers.
	Origin string `yaml:"origin"`

	// DataDir holds saved runs.
	DataDir string `yaml:"data_dir"`

	Threads    ThreadsConfig    `yaml:"threads"`
	Simulation SimulationConfig `yaml:"simulation"`
	Bench      BenchConfig      `yaml:"bench"`
	Serve      shim.Config      `yaml:"serve"`
	Log        logging.Config   `yaml:"log"`
}

type ThreadsConfig struct {
	PolicyCap int `yaml:"policy_cap"`

	// AllowSingleThread runs on one worker instead of failing when
	// shared-memory threading is unavailable.
	AllowSingleThread bool `yaml:"allow_single_thread"`
}

type SimulationConfig struct {
	compute.Params `yaml:",inline"`

	FPS           int     `yaml:"fps"`
	StepsPerFrame int     `yaml:"steps_per_frame"`
	StepBudgetMs  float64 `yaml:"step_budget_ms"`
}

type BenchConfig struct {
	InputSize  int `yaml:"input_size"`
	Iterations int `yaml:"iterations"`
}

func DefaultConfig() *Config {
	return &Config{
		Engine:  compute.EngineNative,
		Image:   "builtin",
		DataDir: ".fluidhost",
		Threads: ThreadsConfig{
			PolicyCap: pool.DefaultPolicyCap,
		},
		Simulation: SimulationConfig{
			Params:        compute.DefaultParams(),
			FPS:           DefaultFPS,
			StepsPerFrame: DefaultStepsPerFrame,
		},
		Bench: BenchConfig{
			InputSize:  DefaultBenchInput,
			Iterations: DefaultIterations,
		},
		Serve: shim.DefaultConfig(),
		Log:   logging.DefaultConfig(),
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := LoadInto(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadInto overlays the file at path on cfg. Keys missing from the file keep
// their current values.
func LoadInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := compute.NewRegistry().Engine(c.Engine); err != nil {
		errs = append(errs, err)
	}
	if c.Threads.PolicyCap < 0 {
		errs = append(errs, fmt.Errorf("threads.policy_cap must not be negative, got %d", c.Threads.PolicyCap))
	}
	if err := c.Simulation.Params.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("simulation: %w", err))
	}
	if c.Simulation.FPS <= 0 {
		errs = append(errs, fmt.Errorf("simulation.fps must be positive, got %d", c.Simulation.FPS))
	}
	if c.Simulation.StepsPerFrame <= 0 {
		errs = append(errs, fmt.Errorf("simulation.steps_per_frame must be positive, got %d", c.Simulation.StepsPerFrame))
	}
	if c.Simulation.StepBudgetMs < 0 {
		errs = append(errs, fmt.Errorf("simulation.step_budget_ms must not be negative, got %g", c.Simulation.StepBudgetMs))
	}
	if c.Bench.InputSize < 0 {
		errs = append(errs, fmt.Errorf("bench.input_size must not be negative, got %d", c.Bench.InputSize))
	}
	if c.Bench.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("bench.iterations must be positive, got %d", c.Bench.Iterations))
	}
	return errors.Join(errs...)
}

// PoolConfig returns the thread policy for this host.
func (c *Config) PoolConfig() pool.Config {
	return pool.HostConfig(c.Threads.PolicyCap)
}
