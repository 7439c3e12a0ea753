package compute

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/san-kum/fluidhost/internal/fault"
	"github.com/san-kum/fluidhost/internal/logging"
	"github.com/san-kum/fluidhost/internal/pool"
)

const (
	EngineNative = "native"
	EngineWasm   = "wasm"
)

// reduceChunk is the smallest slice worth handing to a separate worker.
const reduceChunk = 1 << 14

// NativeModule runs everything in-process on a pool of goroutine workers.
type NativeModule struct {
	log *zap.Logger

	mu     sync.Mutex
	pool   *pool.Pool
	closed bool
}

func NewNative(opts Options) *NativeModule {
	return &NativeModule{log: logging.Or(opts.Logger).Named(EngineNative)}
}

func (m *NativeModule) Name() string { return EngineNative }

func (m *NativeModule) Init(ctx context.Context) error {
	return ctx.Err()
}

func (m *NativeModule) InitThreadPool(ctx context.Context, workers int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("native module is closed")
	}
	if m.pool != nil {
		return nil
	}
	m.pool = pool.New(workers)
	m.log.Debug("worker pool started", zap.Int("workers", m.pool.Workers()))
	return nil
}

func (m *NativeModule) Workers() int {
	p := m.workerPool()
	if p == nil {
		return 0
	}
	return p.Workers()
}

func (m *NativeModule) workerPool() *pool.Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool
}

func (m *NativeModule) ReduceSum(ctx context.Context, input []int32) (int64, error) {
	p := m.workerPool()
	if p == nil {
		return 0, fault.Newf(fault.NotInitialized, "reduce sum", "worker pool not initialized")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	parts := min(p.Workers(), max(1, len(input)/reduceChunk))
	ranges := pool.Partition(len(input), parts)
	partials := make([]int64, len(ranges))

	p.ParallelFor(len(ranges), 1, func(start, end int) {
		for k := start; k < end; k++ {
			var acc int64
			for _, v := range input[ranges[k].Start:ranges[k].End] {
				acc += int64(v)
			}
			partials[k] = acc
		}
	})

	var total int64
	for _, s := range partials {
		total += s
	}
	return total, nil
}

func (m *NativeModule) NewSimulation(p Params, surface Surface) (Simulation, error) {
	wp := m.workerPool()
	if wp == nil {
		return nil, fault.Newf(fault.NotInitialized, "new simulation", "worker pool not initialized")
	}
	if surface == nil {
		return nil, fault.Newf(fault.SurfaceInvalid, "new simulation", "nil surface")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return newFluid(p, wp, surface), nil
}

func (m *NativeModule) Close(context.Context) error {
	m.mu.Lock()
	p := m.pool
	m.pool = nil
	m.closed = true
	m.mu.Unlock()

	if p != nil {
		p.Close()
	}
	return nil
}
