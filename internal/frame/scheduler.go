// Package frame drives a simulation one display frame at a time: step,
// draw, then yield to the pacer until the next frame.
package frame

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/fluidhost/internal/compute"
	"github.com/san-kum/fluidhost/internal/fault"
	"github.com/san-kum/fluidhost/internal/logging"
)

var (
	ErrAlreadyRunning = errors.New("frame: scheduler already running")
	ErrNotRunning     = errors.New("frame: scheduler not running")
)

type Status int

const (
	Stopped Status = iota
	Running
)

func (s Status) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// State is a snapshot of a scheduler run.
type State struct {
	Status             Status
	LastStepDurationMs float64
	FrameIndex         int
	Err                error
}

type Observer interface {
	OnFrame(State)
}

type ObserverFunc func(State)

func (f ObserverFunc) OnFrame(s State) { f(s) }

// Factory creates the simulation for a run, bound to its surface.
type Factory func(surface compute.Surface) (compute.Simulation, error)

type Option func(*Scheduler)

// WithStepsPerFrame advances the solver n times per frame. The frame's
// step duration covers all of them.
func WithStepsPerFrame(n int) Option {
	return func(s *Scheduler) { s.stepsPerFrame = max(n, 1) }
}

// WithStepBudget fails the run when a frame's steps take longer than d.
// Steps are not interrupted; the budget is checked once they return.
func WithStepBudget(d time.Duration) Option {
	return func(s *Scheduler) { s.stepBudget = d }
}

func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, o) }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

type size struct{ w, h int }

// run is one Start..Stop cycle. It owns its simulation.
type run struct {
	sim      compute.Simulation
	state    State
	cancel   func()
	inFlight bool
	resize   *size
	done     chan struct{}
	finished bool
}

// Scheduler runs at most one simulation at a time. Frames never overlap: the
// next frame is requested only after the previous one has drawn.
type Scheduler struct {
	factory       Factory
	pacer         Pacer
	stepsPerFrame int
	stepBudget    time.Duration
	observers     []Observer
	log           *zap.Logger

	mu  sync.Mutex
	cur *run
}

func New(factory Factory, pacer Pacer, opts ...Option) *Scheduler {
	s := &Scheduler{
		factory:       factory,
		pacer:         pacer,
		stepsPerFrame: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.Or(s.log).Named("frame")
	return s
}

// Start creates a simulation on surface, draws its initial state and
// requests the first frame. It returns ErrAlreadyRunning while a previous run
// is running or still finishing a step after Stop.
func (s *Scheduler) Start(surface compute.Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A stopped run still owns its simulation until its in-flight step returns.
	if s.cur != nil && (s.cur.state.Status == Running || !s.cur.finished) {
		return ErrAlreadyRunning
	}

	sim, err := s.factory(surface)
	if err != nil {
		return err
	}
	if err := sim.Draw(); err != nil {
		_ = sim.Close()
		return classify(fault.SurfaceInvalid, "draw", err)
	}

	r := &run{
		sim:   sim,
		state: State{Status: Running},
		done:  make(chan struct{}),
	}
	s.cur = r
	s.request(r)
	s.log.Debug("scheduler started", zap.Int("steps_per_frame", s.stepsPerFrame))
	return nil
}

// request must be called with s.mu held.
func (s *Scheduler) request(r *run) {
	r.cancel = s.pacer.RequestFrame(func(now time.Time) { s.frame(r, now) })
}

// Stop cancels the pending frame. A step already in progress runs to
// completion but is neither drawn nor counted, and nothing is rescheduled.
// Stopping a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	r := s.cur
	if r == nil || r.state.Status != Running {
		s.mu.Unlock()
		return
	}
	r.state.Status = Stopped
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	idle := !r.inFlight
	s.mu.Unlock()

	if idle {
		s.finish(r)
	}
	s.log.Debug("scheduler stopped")
}

// Shutdown stops the scheduler and waits for a frame in progress to return,
// so the surface and worker pool can be released afterwards.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Stop()
	return s.Wait(ctx)
}

// Resize takes effect at the start of the next frame.
func (s *Scheduler) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("frame: invalid size %dx%d", width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.cur.state.Status != Running {
		return ErrNotRunning
	}
	s.cur.resize = &size{width, height}
	return nil
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return State{Status: Stopped}
	}
	return s.cur.state
}

// Wait blocks until the current run stops and returns its error, if any.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return r.state.Err
}

func (s *Scheduler) frame(r *run, _ time.Time) {
	s.mu.Lock()
	if r.state.Status != Running {
		s.mu.Unlock()
		return
	}
	r.inFlight = true
	r.cancel = nil
	rs := r.resize
	r.resize = nil
	s.mu.Unlock()

	elapsed, err := s.step(r.sim, rs)

	s.mu.Lock()
	if err == nil && r.state.Status != Running {
		r.inFlight = false
		s.mu.Unlock()
		s.finish(r)
		return
	}
	s.mu.Unlock()

	if err == nil {
		err = s.draw(r.sim)
	}

	s.mu.Lock()
	r.inFlight = false
	if elapsed > 0 {
		r.state.LastStepDurationMs = float64(elapsed) / float64(time.Millisecond)
	}
	if err != nil {
		r.state.Status = Stopped
		r.state.Err = err
		st := r.state
		s.mu.Unlock()

		s.log.Error("frame failed, scheduler stopped", zap.Int("frame", st.FrameIndex), zap.Error(err))
		s.finish(r)
		s.notify(st)
		return
	}

	r.state.FrameIndex++
	st := r.state
	running := r.state.Status == Running
	if running {
		s.request(r)
	}
	s.mu.Unlock()

	if !running {
		s.finish(r)
	}
	s.notify(st)
}

// step applies a pending resize and advances the solver. It returns the
// time spent stepping.
func (s *Scheduler) step(sim compute.Simulation, rs *size) (elapsed time.Duration, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fault.New(fault.StepFailure, "step", fmt.Errorf("panic: %v", p))
		}
	}()

	if rs != nil {
		if err := sim.Resize(rs.w, rs.h); err != nil {
			return 0, classify(fault.SurfaceInvalid, "resize", err)
		}
	}

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < s.stepsPerFrame; i++ {
		if err := sim.Step(ctx); err != nil {
			return time.Since(start), classify(fault.StepFailure, "step", err)
		}
	}
	elapsed = time.Since(start)

	if s.stepBudget > 0 && elapsed > s.stepBudget {
		return elapsed, fault.New(fault.StepFailure, "step",
			fmt.Errorf("took %s, budget %s", elapsed.Round(time.Microsecond), s.stepBudget))
	}
	return elapsed, nil
}

func (s *Scheduler) draw(sim compute.Simulation) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fault.New(fault.SurfaceInvalid, "draw", fmt.Errorf("panic: %v", p))
		}
	}()
	if err := sim.Draw(); err != nil {
		return classify(fault.SurfaceInvalid, "draw", err)
	}
	return nil
}

// finish releases the run's simulation once. The surface keeps the last
// drawn frame.
func (s *Scheduler) finish(r *run) {
	s.mu.Lock()
	if r.finished {
		s.mu.Unlock()
		return
	}
	r.finished = true
	s.mu.Unlock()

	if err := r.sim.Close(); err != nil {
		s.log.Warn("closing simulation", zap.Error(err))
	}
	close(r.done)
}

func (s *Scheduler) notify(st State) {
	for _, o := range s.observers {
		o.OnFrame(st)
	}
}

// classify tags err with kind unless it already carries one.
func classify(kind fault.Kind, op string, err error) error {
	if fault.KindOf(err) != "" {
		return err
	}
	return fault.New(kind, op, err)
}
