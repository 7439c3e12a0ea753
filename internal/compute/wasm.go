package compute

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/fluidhost/internal/fault"
	"github.com/san-kum/fluidhost/internal/logging"
	"github.com/san-kum/fluidhost/internal/pool"
)

const (
	sumExport    = "sum"
	memoryExport = "memory"
	wasmPageSize = 65536
)

// WasmModule runs a precompiled image under wazero. Each worker owns one
// instance of the compiled module with its own linear memory.
type WasmModule struct {
	image []byte
	log   *zap.Logger

	mu       sync.Mutex
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	workers  []*wasmWorker
}

type wasmWorker struct {
	mod api.Module
	sum api.Function
	mem api.Memory
}

func NewWasm(opts Options) (*WasmModule, error) {
	if len(opts.Image) == 0 {
		return nil, fault.Newf(fault.LoadFailure, "new wasm module", "empty image")
	}
	return &WasmModule{
		image: opts.Image,
		log:   logging.Or(opts.Logger).Named(EngineWasm),
	}, nil
}

func (m *WasmModule) Name() string { return EngineWasm }

// Init compiles the image and checks that it exports the reduction entry
// point and its memory.
func (m *WasmModule) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.compiled != nil {
		return nil
	}
	if !CheckHeader(m.image) {
		return fault.Newf(fault.LoadFailure, "validate image", "missing wasm magic or unsupported version")
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithCoreFeatures(api.CoreFeaturesV2|experimental.CoreFeaturesThreads))

	compiled, err := rt.CompileModule(ctx, m.image)
	if err != nil {
		_ = rt.Close(ctx)
		return fault.New(fault.LoadFailure, "compile image", err)
	}

	fn, ok := compiled.ExportedFunctions()[sumExport]
	if !ok {
		_ = rt.Close(ctx)
		return fault.Newf(fault.LoadFailure, "validate image", "missing export %s", sumExport)
	}
	if !signatureMatches(fn) {
		_ = rt.Close(ctx)
		return fault.Newf(fault.LoadFailure, "validate image", "%s must be (i32, i32) -> i64", sumExport)
	}
	if _, ok := compiled.ExportedMemories()[memoryExport]; !ok {
		_ = rt.Close(ctx)
		return fault.Newf(fault.LoadFailure, "validate image", "missing export %s", memoryExport)
	}

	m.runtime = rt
	m.compiled = compiled
	m.log.Debug("image compiled", zap.Int("bytes", len(m.image)))
	return nil
}

func signatureMatches(fn api.FunctionDefinition) bool {
	params, results := fn.ParamTypes(), fn.ResultTypes()
	return len(params) == 2 && params[0] == api.ValueTypeI32 && params[1] == api.ValueTypeI32 &&
		len(results) == 1 && results[0] == api.ValueTypeI64
}

func (m *WasmModule) InitThreadPool(ctx context.Context, workers int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.compiled == nil {
		return errors.New("wasm module not compiled")
	}
	if len(m.workers) > 0 {
		return nil
	}

	workers = max(workers, 1)
	out := make([]*wasmWorker, 0, workers)
	for i := 0; i < workers; i++ {
		mod, err := m.runtime.InstantiateModule(ctx, m.compiled,
			wazero.NewModuleConfig().WithName(fmt.Sprintf("worker-%d", i)))
		if err != nil {
			for _, w := range out {
				_ = w.mod.Close(ctx)
			}
			return fmt.Errorf("instantiate worker %d: %w", i, err)
		}
		out = append(out, &wasmWorker{
			mod: mod,
			sum: mod.ExportedFunction(sumExport),
			mem: mod.ExportedMemory(memoryExport),
		})
	}
	m.workers = out
	m.log.Debug("worker instances started", zap.Int("workers", workers))
	return nil
}

func (m *WasmModule) Workers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// ReduceSum copies one partition of input into each worker's memory and runs
// the exported sum on all workers concurrently.
func (m *WasmModule) ReduceSum(ctx context.Context, input []int32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.workers) == 0 {
		return 0, fault.Newf(fault.NotInitialized, "reduce sum", "worker pool not initialized")
	}

	parts := min(len(m.workers), max(1, len(input)/reduceChunk))
	ranges := pool.Partition(len(input), parts)
	partials := make([]int64, len(ranges))

	g, gctx := errgroup.WithContext(ctx)
	for k, r := range ranges {
		w := m.workers[k]
		g.Go(func() error {
			v, err := w.reduce(gctx, input[r.Start:r.End])
			if err != nil {
				return fmt.Errorf("worker %d: %w", k, err)
			}
			partials[k] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, s := range partials {
		total += s
	}
	return total, nil
}

func (w *wasmWorker) reduce(ctx context.Context, part []int32) (int64, error) {
	need := uint64(len(part)) * 4
	if need > uint64(^uint32(0)) {
		return 0, fmt.Errorf("partition of %d values exceeds linear memory", len(part))
	}
	if size := uint64(w.mem.Size()); need > size {
		delta := (need - size + wasmPageSize - 1) / wasmPageSize
		if _, ok := w.mem.Grow(uint32(delta)); !ok {
			return 0, fmt.Errorf("grow memory by %d pages", delta)
		}
	}

	buf, ok := w.mem.Read(0, uint32(need))
	if !ok {
		return 0, errors.New("memory view out of range")
	}
	for i, v := range part {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}

	res, err := w.sum.Call(ctx, 0, uint64(len(part)))
	if err != nil {
		return 0, err
	}
	return int64(res[0]), nil
}

func (m *WasmModule) NewSimulation(Params, Surface) (Simulation, error) {
	return nil, fault.Newf(fault.CapabilityUnsupported, "new simulation", "wasm image exports no simulation entry points")
}

func (m *WasmModule) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workers = nil
	if m.runtime == nil {
		return nil
	}
	err := m.runtime.Close(ctx)
	m.runtime = nil
	m.compiled = nil
	return err
}
