// Package driver wires the prober, loader, thread pool, benchmark harness and
// frame scheduler into the two runs the host supports.
package driver

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/fluidhost/internal/bench"
	"github.com/san-kum/fluidhost/internal/compute"
	"github.com/san-kum/fluidhost/internal/config"
	"github.com/san-kum/fluidhost/internal/frame"
	"github.com/san-kum/fluidhost/internal/loader"
	"github.com/san-kum/fluidhost/internal/logging"
	"github.com/san-kum/fluidhost/internal/pool"
	"github.com/san-kum/fluidhost/internal/probe"
)

type Option func(*Driver)

func WithProber(p *probe.Prober) Option {
	return func(d *Driver) { d.prober = p }
}

func WithLoader(l *loader.Loader) Option {
	return func(d *Driver) { d.loader = l }
}

func WithHTTPClient(c *http.Client) Option {
	return func(d *Driver) { d.client = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.log = l }
}

type Driver struct {
	cfg    *config.Config
	prober *probe.Prober
	loader *loader.Loader
	client *http.Client
	log    *zap.Logger
}

func New(cfg *config.Config, opts ...Option) *Driver {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	d := &Driver{cfg: cfg, client: http.DefaultClient}
	for _, opt := range opts {
		opt(d)
	}
	d.log = logging.Or(d.log).Named("driver")

	if d.prober == nil {
		popts := []probe.Option{probe.WithHTTPClient(d.client), probe.WithLogger(d.log)}
		if e, err := compute.NewRegistry().Engine(cfg.Engine); err == nil {
			popts = append(popts, probe.WithEngineThreads(e.Threads))
		}
		if cfg.Origin != "" {
			popts = append(popts, probe.WithOrigin(cfg.Origin))
		}
		d.prober = probe.New(popts...)
	}
	if d.loader == nil {
		d.loader = loader.New(loader.Config{
			Engine: cfg.Engine,
			Source: loader.SourceFor(cfg.Image, d.client),
			Logger: d.log,
		})
	}
	return d
}

func (d *Driver) Config() *config.Config { return d.cfg }

func (d *Driver) Loader() *loader.Loader { return d.loader }

func (d *Driver) Profile(ctx context.Context) probe.Profile {
	return d.prober.Probe(ctx)
}

// Prepare probes the host, loads the module and sizes its thread pool. When
// shared-memory threading is missing the module is not loaded and the error
// is a CapabilityUnsupported fault, unless the single-thread fallback is
// enabled, in which case the pool gets one worker.
func (d *Driver) Prepare(ctx context.Context) (*loader.Handle, error) {
	profile := d.prober.Probe(ctx)
	pcfg := d.cfg.PoolConfig()

	if err := profile.Require(true); err != nil {
		if !d.cfg.Threads.AllowSingleThread || profile.Require(false) != nil {
			d.log.Error("host cannot run the multithreaded module", zap.Error(err))
			return nil, err
		}
		d.log.Warn("shared-memory threading unavailable, running on one worker", zap.Error(err))
		pcfg = pool.Config{PolicyCap: 1, HostConcurrencyHint: 1}
	}

	h, err := d.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.InitThreads(ctx, pcfg); err != nil {
		return nil, err
	}
	return h, nil
}

// Benchmark reduces the range 0..n-1 the configured number of times.
func (d *Driver) Benchmark(ctx context.Context) (bench.Result, error) {
	h, err := d.Prepare(ctx)
	if err != nil {
		return bench.Result{}, err
	}

	input := bench.RangeInput(d.cfg.Bench.InputSize)
	res, err := bench.Run(ctx, h, input, d.cfg.Bench.Iterations)
	if err != nil {
		return bench.Result{}, err
	}
	d.log.Info("benchmark finished",
		zap.Stringer("run_id", res.RunID),
		zap.Int("workers", res.Workers),
		zap.Int64("per_iteration", res.PerIteration),
		zap.Float64("total_ms", res.TotalElapsedMs))
	return res, nil
}

// Session is a started simulation run.
type Session struct {
	*frame.Scheduler
	sim compute.Simulation
}

// Checksum reports the solver's checksum when it has one. Call it only once
// the scheduler has stopped.
func (s *Session) Checksum() (float64, bool) {
	c, ok := s.sim.(compute.Checksummer)
	if !ok {
		return 0, false
	}
	return c.Checksum(), true
}

// Simulate starts a scheduler drawing onto surface. Frames are requested from
// pacer; extra options are applied after the configured ones.
func (d *Driver) Simulate(ctx context.Context, surface compute.Surface, pacer frame.Pacer, opts ...frame.Option) (*Session, error) {
	h, err := d.Prepare(ctx)
	if err != nil {
		return nil, err
	}

	sc := d.cfg.Simulation
	params := sc.Params
	all := []frame.Option{
		frame.WithStepsPerFrame(sc.StepsPerFrame),
		frame.WithLogger(d.log),
	}
	if sc.StepBudgetMs > 0 {
		all = append(all, frame.WithStepBudget(time.Duration(sc.StepBudgetMs*float64(time.Millisecond))))
	}
	all = append(all, opts...)

	sess := &Session{}
	sess.Scheduler = frame.New(func(surface compute.Surface) (compute.Simulation, error) {
		sim, err := h.NewSimulation(params, surface)
		sess.sim = sim
		return sim, err
	}, pacer, all...)
	if err := sess.Start(surface); err != nil {
		return nil, err
	}
	d.log.Info("simulation started",
		zap.Int("particles", params.Particles),
		zap.Int("workers", h.Workers()),
		zap.Int("steps_per_frame", sc.StepsPerFrame))
	return sess, nil
}

func (d *Driver) Close(ctx context.Context) error {
	return d.loader.Close(ctx)
}
