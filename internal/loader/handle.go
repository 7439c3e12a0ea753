package loader

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/san-kum/fluidhost/internal/compute"
	"github.com/san-kum/fluidhost/internal/fault"
	"github.com/san-kum/fluidhost/internal/pool"
)

// Handle is the initialized compute module. After InitThreads it is
// read-only and safe to share.
type Handle struct {
	mod compute.Module
	log *zap.Logger

	mu      sync.Mutex
	workers int
	closed  bool
}

func newHandle(mod compute.Module, log *zap.Logger) *Handle {
	return &Handle{mod: mod, log: log}
}

func (h *Handle) Engine() string { return h.mod.Name() }

// InitThreads sizes the module's worker pool from cfg. Only the first call
// allocates; later calls return nil and keep the existing pool.
func (h *Handle) InitThreads(ctx context.Context, cfg pool.Config) error {
	n := cfg.Resolve()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.workers > 0 {
		if n != h.workers {
			h.log.Warn("thread pool already initialized, keeping existing size",
				zap.Int("workers", h.workers), zap.Int("requested", n))
		}
		return nil
	}
	if err := h.mod.InitThreadPool(ctx, n); err != nil {
		return fmt.Errorf("init thread pool: %w", err)
	}
	h.workers = n
	h.log.Info("thread pool initialized",
		zap.Int("workers", n),
		zap.Int("policy_cap", cfg.PolicyCap),
		zap.Int("host_concurrency", cfg.HostConcurrencyHint))
	return nil
}

// Workers returns the pool size, or 0 before InitThreads.
func (h *Handle) Workers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.workers
}

func (h *Handle) ready(op string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fault.Newf(fault.NotInitialized, op, "module closed")
	}
	if h.workers == 0 {
		return fault.Newf(fault.NotInitialized, op, "InitThreads has not completed")
	}
	return nil
}

func (h *Handle) ReduceSum(ctx context.Context, input []int32) (int64, error) {
	if err := h.ready("reduce sum"); err != nil {
		return 0, err
	}
	return h.mod.ReduceSum(ctx, input)
}

func (h *Handle) NewSimulation(p compute.Params, s compute.Surface) (compute.Simulation, error) {
	if err := h.ready("new simulation"); err != nil {
		return nil, err
	}
	return h.mod.NewSimulation(p, s)
}

func (h *Handle) close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	return h.mod.Close(ctx)
}
