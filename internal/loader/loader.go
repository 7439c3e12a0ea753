// Package loader acquires and initializes the compute module exactly once
// per process.
package loader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/san-kum/fluidhost/internal/compute"
	"github.com/san-kum/fluidhost/internal/fault"
	"github.com/san-kum/fluidhost/internal/logging"
)

// State is the lifecycle state of a Loader.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateFailed
)

var stateNames = map[State]string{
	StateUnloaded: "unloaded",
	StateLoading:  "loading",
	StateReady:    "ready",
	StateFailed:   "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

type Config struct {
	Engine   string
	Source   Source
	Registry *compute.Registry
	Logger   *zap.Logger
}

// Loader moves from Unloaded through Loading to Ready or Failed. Both end
// states are final: a failed load is never retried in the same process.
type Loader struct {
	cfg Config
	log *zap.Logger

	group singleflight.Group
	state atomic.Int32

	mu     sync.Mutex
	handle *Handle
	err    error
}

func New(cfg Config) *Loader {
	if cfg.Registry == nil {
		cfg.Registry = compute.NewRegistry()
	}
	if cfg.Engine == "" {
		cfg.Engine = compute.EngineNative
	}
	if cfg.Source == nil {
		cfg.Source = Builtin{}
	}
	return &Loader{cfg: cfg, log: logging.Or(cfg.Logger).Named("loader")}
}

func (l *Loader) State() State {
	return State(l.state.Load())
}

// Load returns the process handle, loading the module on first use.
// Concurrent callers share one load. A caller whose ctx ends stops waiting
// without cancelling the load for the others.
func (l *Loader) Load(ctx context.Context) (*Handle, error) {
	if h, done, err := l.result(); done {
		return h, err
	}

	ch := l.group.DoChan("load", func() (any, error) {
		return l.load(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Handle), nil
	}
}

func (l *Loader) result() (*Handle, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.State() {
	case StateReady:
		return l.handle, true, nil
	case StateFailed:
		return nil, true, l.err
	}
	return nil, false, nil
}

func (l *Loader) load(ctx context.Context) (*Handle, error) {
	if h, done, err := l.result(); done {
		return h, err
	}
	l.state.Store(int32(StateLoading))

	log := l.log.With(zap.String("engine", l.cfg.Engine), zap.Stringer("source", l.cfg.Source))
	log.Info("loading compute module")

	h, err := l.open(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.err = err
		l.state.Store(int32(StateFailed))
		log.Error("compute module load failed", zap.Error(err))
		return nil, err
	}
	l.handle = h
	l.state.Store(int32(StateReady))
	log.Info("compute module ready")
	return h, nil
}

func (l *Loader) open(ctx context.Context) (*Handle, error) {
	engine, err := l.cfg.Registry.Engine(l.cfg.Engine)
	if err != nil {
		return nil, fault.New(fault.LoadFailure, "select engine", err)
	}

	var image []byte
	if engine.NeedsImage {
		image, err = l.cfg.Source.Fetch(ctx)
		if err != nil {
			return nil, fault.New(fault.LoadFailure, "fetch image", err)
		}
		if !compute.CheckHeader(image) {
			return nil, fault.Newf(fault.LoadFailure, "validate image",
				"%s is not a version 1 wasm binary", l.cfg.Source)
		}
	}

	mod, err := engine.New(compute.Options{Image: image, Logger: l.log})
	if err != nil {
		return nil, fault.New(fault.LoadFailure, "create module", err)
	}
	if err := mod.Init(ctx); err != nil {
		_ = mod.Close(ctx)
		return nil, fault.New(fault.LoadFailure, "init module", err)
	}
	return newHandle(mod, l.log), nil
}

// Close releases the loaded module, if any. It is meant for process
// teardown; the loader stays in its final state.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	h := l.handle
	l.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.close(ctx)
}
