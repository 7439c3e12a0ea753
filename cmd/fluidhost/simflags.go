package main

import (
	"github.com/spf13/cobra"
)

// simFlags are the simulation overrides shared by run, live and serve.
type simFlags struct {
	particles     int
	stepsPerFrame int
	budgetMs      float64
	fps           int
	seed          int64
}

func (f *simFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.IntVar(&f.particles, "particles", 0, "particle count (default from config)")
	fl.IntVar(&f.stepsPerFrame, "steps-per-frame", 0, "solver steps per frame (default from config)")
	fl.Float64Var(&f.budgetMs, "budget-ms", 0, "fail when a frame's steps take longer than this")
	fl.IntVar(&f.fps, "fps", 0, "frame rate (default from config)")
	fl.Int64Var(&f.seed, "seed", 0, "layout seed (default from config)")
}

func (f *simFlags) apply(cmd *cobra.Command) error {
	fl := cmd.Flags()
	sc := &cfg.Simulation
	if fl.Changed("particles") {
		sc.Particles = f.particles
	}
	if fl.Changed("steps-per-frame") {
		sc.StepsPerFrame = f.stepsPerFrame
	}
	if fl.Changed("budget-ms") {
		sc.StepBudgetMs = f.budgetMs
	}
	if fl.Changed("fps") {
		sc.FPS = f.fps
	}
	if fl.Changed("seed") {
		sc.Seed = f.seed
	}
	return cfg.Validate()
}
