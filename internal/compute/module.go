package compute

import (
	"context"
)

// Module is a loaded compute module.
type Module interface {
	Name() string

	// Init prepares the module after its image has been fetched.
	Init(ctx context.Context) error

	// InitThreadPool allocates the worker pool. Calls after the first
	// succeed without reallocating.
	InitThreadPool(ctx context.Context, workers int) error

	// Workers reports the live pool size, or 0 before InitThreadPool.
	Workers() int

	// ReduceSum returns the sum of input. The result does not depend on how
	// the input is partitioned across workers.
	ReduceSum(ctx context.Context, input []int32) (int64, error)

	// NewSimulation creates solver state bound to surface.
	NewSimulation(p Params, surface Surface) (Simulation, error)

	Close(ctx context.Context) error
}

// Simulation is solver state owned by the module. Steps are strictly
// sequential; Draw renders the current state and never advances it.
type Simulation interface {
	Step(ctx context.Context) error
	Draw() error
	Resize(width, height int) error
	Close() error
}

// Checksummer is implemented by simulations that can summarize their state
// as a single number for cross-run comparison.
type Checksummer interface {
	Checksum() float64
}

// Surface is a drawable target in pixel coordinates with the origin at the
// top-left corner.
type Surface interface {
	Size() (width, height int)
	Resize(width, height int) error
	Clear() error
	Circle(x, y, r float64)
	Present() error
}
