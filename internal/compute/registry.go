package compute

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Options are passed to an engine factory.
type Options struct {
	// Image is the module binary for engines that need one.
	Image  []byte
	Logger *zap.Logger
}

// Engine describes a registered compute engine.
type Engine struct {
	Name       string
	NeedsImage bool
	// Threads reports whether the engine can share memory between workers.
	Threads bool
	New     func(Options) (Module, error)
}

type Registry struct {
	engines map[string]Engine
}

func NewRegistry() *Registry {
	r := &Registry{engines: make(map[string]Engine)}

	r.Register(Engine{
		Name:    EngineNative,
		Threads: true,
		New:     func(o Options) (Module, error) { return NewNative(o), nil },
	})
	r.Register(Engine{
		Name:       EngineWasm,
		NeedsImage: true,
		Threads:    true,
		New:        func(o Options) (Module, error) { return NewWasm(o) },
	})

	return r
}

func (r *Registry) Register(e Engine) {
	r.engines[e.Name] = e
}

func (r *Registry) Engine(name string) (Engine, error) {
	e, ok := r.engines[name]
	if !ok {
		return Engine{}, fmt.Errorf("unknown engine: %s", name)
	}
	return e, nil
}

func (r *Registry) New(name string, opts Options) (Module, error) {
	e, err := r.Engine(name)
	if err != nil {
		return nil, err
	}
	return e.New(opts)
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
