package frame

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/fluidhost/internal/compute"
	"github.com/san-kum/fluidhost/internal/fault"
)

type fakeSurface struct{ w, h int }

func (s *fakeSurface) Size() (int, int)       { return s.w, s.h }
func (s *fakeSurface) Clear() error           { return nil }
func (s *fakeSurface) Circle(_, _, _ float64) {}
func (s *fakeSurface) Present() error         { return nil }

func (s *fakeSurface) Resize(w, h int) error {
	s.w, s.h = w, h
	return nil
}

type fakeSim struct {
	mu       sync.Mutex
	steps    int
	draws    int
	closes   int
	resizes  []size
	failAt   int
	panicAt  int
	drawErr  error
	stepTime time.Duration
	log      []string
}

func (f *fakeSim) Step(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps++
	f.log = append(f.log, "step")
	if f.panicAt > 0 && f.steps == f.panicAt {
		panic("solver exploded")
	}
	if f.failAt > 0 && f.steps == f.failAt {
		return errors.New("non-finite density")
	}
	if f.stepTime > 0 {
		time.Sleep(f.stepTime)
	}
	return nil
}

func (f *fakeSim) Draw() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draws++
	f.log = append(f.log, "draw")
	return f.drawErr
}

func (f *fakeSim) Resize(w, h int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, size{w, h})
	f.log = append(f.log, "resize")
	return nil
}

func (f *fakeSim) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSim) counts() (steps, draws, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.steps, f.draws, f.closes
}

func factoryFor(sims ...*fakeSim) (Factory, *int) {
	created := 0
	return func(compute.Surface) (compute.Simulation, error) {
		s := sims[created]
		created++
		return s, nil
	}, &created
}

var _ = Describe("Scheduler", func() {
	var (
		pacer *ManualPacer
		sim   *fakeSim
		sched *Scheduler
		surf  *fakeSurface
	)

	BeforeEach(func() {
		pacer = NewManualPacer()
		sim = &fakeSim{}
		surf = &fakeSurface{w: 64, h: 64}
		factory, _ := factoryFor(sim)
		sched = New(factory, pacer)
	})

	It("starts stopped", func() {
		Expect(sched.State().Status).To(Equal(Stopped))
		Expect(sched.Wait(context.Background())).To(Succeed())
	})

	It("draws once on start and requests the first frame", func() {
		Expect(sched.Start(surf)).To(Succeed())

		steps, draws, _ := sim.counts()
		Expect(steps).To(Equal(0))
		Expect(draws).To(Equal(1))
		Expect(pacer.Pending()).To(Equal(1))
		Expect(sched.State().Status).To(Equal(Running))
	})

	It("steps then draws on every frame", func() {
		Expect(sched.Start(surf)).To(Succeed())
		for i := 0; i < 3; i++ {
			Expect(pacer.Fire(time.Now())).To(Equal(1))
		}

		steps, draws, _ := sim.counts()
		Expect(steps).To(Equal(3))
		Expect(draws).To(Equal(4))
		Expect(sim.log).To(Equal([]string{"draw", "step", "draw", "step", "draw", "step", "draw"}))

		st := sched.State()
		Expect(st.FrameIndex).To(Equal(3))
		Expect(st.LastStepDurationMs).To(BeNumerically(">=", 0))
		Expect(pacer.Pending()).To(Equal(1))
	})

	It("stops before the next step when stopped between frames", func() {
		Expect(sched.Start(surf)).To(Succeed())
		pacer.Fire(time.Now())

		sched.Stop()
		Expect(sched.State().Status).To(Equal(Stopped))
		Expect(pacer.Pending()).To(Equal(0))
		Expect(pacer.Fire(time.Now())).To(Equal(0))

		steps, _, closes := sim.counts()
		Expect(steps).To(Equal(1))
		Expect(closes).To(Equal(1))
		Expect(sched.Wait(context.Background())).To(Succeed())
	})

	It("treats Stop on a stopped scheduler as a no-op", func() {
		sched.Stop()
		Expect(sched.Start(surf)).To(Succeed())
		sched.Stop()
		sched.Stop()

		_, _, closes := sim.counts()
		Expect(closes).To(Equal(1))
	})

	It("rejects a second Start while running", func() {
		Expect(sched.Start(surf)).To(Succeed())
		Expect(sched.Start(surf)).To(MatchError(ErrAlreadyRunning))
	})

	It("stops on a step failure without rescheduling", func() {
		sim.failAt = 2
		var seen []State
		factory, _ := factoryFor(sim)
		sched = New(factory, pacer, WithObserver(ObserverFunc(func(s State) { seen = append(seen, s) })))

		Expect(sched.Start(surf)).To(Succeed())
		pacer.Fire(time.Now())
		pacer.Fire(time.Now())

		st := sched.State()
		Expect(st.Status).To(Equal(Stopped))
		Expect(st.FrameIndex).To(Equal(1))
		Expect(errors.Is(st.Err, fault.ErrStepFailure)).To(BeTrue())
		Expect(pacer.Pending()).To(Equal(0))

		steps, draws, closes := sim.counts()
		Expect(steps).To(Equal(2))
		Expect(draws).To(Equal(2))
		Expect(closes).To(Equal(1))

		err := sched.Wait(context.Background())
		Expect(errors.Is(err, fault.ErrStepFailure)).To(BeTrue())

		Expect(seen).To(HaveLen(2))
		Expect(seen[1].Err).To(HaveOccurred())
	})

	It("converts a solver panic into a step failure", func() {
		sim.panicAt = 1
		Expect(sched.Start(surf)).To(Succeed())
		pacer.Fire(time.Now())

		st := sched.State()
		Expect(st.Status).To(Equal(Stopped))
		Expect(errors.Is(st.Err, fault.ErrStepFailure)).To(BeTrue())
	})

	It("classifies draw errors as an invalid surface", func() {
		Expect(sched.Start(surf)).To(Succeed())
		sim.drawErr = errors.New("context lost")
		pacer.Fire(time.Now())

		st := sched.State()
		Expect(st.Status).To(Equal(Stopped))
		Expect(errors.Is(st.Err, fault.ErrSurfaceInvalid)).To(BeTrue())
		Expect(st.FrameIndex).To(Equal(0))
	})

	It("fails Start when the first draw fails", func() {
		sim.drawErr = errors.New("no surface")
		err := sched.Start(surf)
		Expect(errors.Is(err, fault.ErrSurfaceInvalid)).To(BeTrue())
		Expect(sched.State().Status).To(Equal(Stopped))
		_, _, closes := sim.counts()
		Expect(closes).To(Equal(1))
	})

	It("applies resizes at the start of the next frame", func() {
		Expect(sched.Start(surf)).To(Succeed())
		Expect(sched.Resize(100, 50)).To(Succeed())
		Expect(sched.Resize(120, 60)).To(Succeed())
		Expect(sim.resizes).To(BeEmpty())

		pacer.Fire(time.Now())
		Expect(sim.resizes).To(Equal([]size{{120, 60}}))
		Expect(sim.log[1:3]).To(Equal([]string{"resize", "step"}))

		Expect(sched.Resize(0, 10)).NotTo(Succeed())
		sched.Stop()
		Expect(sched.Resize(10, 10)).To(MatchError(ErrNotRunning))
	})

	It("advances several solver steps per frame", func() {
		factory, _ := factoryFor(sim)
		sched = New(factory, pacer, WithStepsPerFrame(10))
		Expect(sched.Start(surf)).To(Succeed())
		pacer.Fire(time.Now())

		steps, draws, _ := sim.counts()
		Expect(steps).To(Equal(10))
		Expect(draws).To(Equal(2))
		Expect(sched.State().FrameIndex).To(Equal(1))
	})

	It("fails a frame whose steps exceed the budget", func() {
		sim.stepTime = 20 * time.Millisecond
		factory, _ := factoryFor(sim)
		sched = New(factory, pacer, WithStepBudget(time.Millisecond))
		Expect(sched.Start(surf)).To(Succeed())
		pacer.Fire(time.Now())

		st := sched.State()
		Expect(st.Status).To(Equal(Stopped))
		Expect(errors.Is(st.Err, fault.ErrStepFailure)).To(BeTrue())
		Expect(st.LastStepDurationMs).To(BeNumerically(">=", 20))
	})

	It("restarts with a fresh simulation and frame count", func() {
		second := &fakeSim{}
		factory, created := factoryFor(sim, second)
		sched = New(factory, pacer)

		Expect(sched.Start(surf)).To(Succeed())
		pacer.Fire(time.Now())
		sched.Stop()

		Expect(sched.Start(surf)).To(Succeed())
		Expect(*created).To(Equal(2))
		Expect(sched.State().FrameIndex).To(Equal(0))
		pacer.Fire(time.Now())

		steps, _, _ := second.counts()
		Expect(steps).To(Equal(1))
		firstSteps, _, _ := sim.counts()
		Expect(firstSteps).To(Equal(1))
	})

	It("propagates factory errors", func() {
		sched = New(func(compute.Surface) (compute.Simulation, error) {
			return nil, fault.ErrCapabilityUnsupported
		}, pacer)
		err := sched.Start(surf)
		Expect(errors.Is(err, fault.ErrCapabilityUnsupported)).To(BeTrue())
	})
})

var _ = Describe("Stop during a frame", func() {
	var (
		pacer   *ManualPacer
		sim     *fakeSim
		gate    *gatedSim
		created int
		sched   *Scheduler
		fired   chan int
	)

	BeforeEach(func() {
		pacer = NewManualPacer()
		sim = &fakeSim{}
		gate = &gatedSim{fakeSim: sim, entered: make(chan struct{}), release: make(chan struct{})}
		created = 0
		sched = New(func(compute.Surface) (compute.Simulation, error) {
			created++
			if created == 1 {
				return gate, nil
			}
			return &fakeSim{}, nil
		}, pacer)
		Expect(sched.Start(&fakeSurface{w: 8, h: 8})).To(Succeed())

		fired = make(chan int)
		go func() { fired <- pacer.Fire(time.Now()) }()
		Eventually(gate.entered).Should(BeClosed())
		sched.Stop()
	})

	It("finishes the in-flight step without drawing or counting it", func() {
		_, _, closes := sim.counts()
		Expect(closes).To(Equal(0), "simulation must outlive the in-flight step")

		close(gate.release)
		Eventually(fired).Should(Receive(Equal(1)))

		steps, draws, closes := sim.counts()
		Expect(steps).To(Equal(1))
		Expect(draws).To(Equal(1))
		Expect(closes).To(Equal(1))
		Expect(pacer.Pending()).To(Equal(0))

		st := sched.State()
		Expect(st.Status).To(Equal(Stopped))
		Expect(st.FrameIndex).To(Equal(0))
		Expect(st.Err).NotTo(HaveOccurred())
		Expect(sched.Wait(context.Background())).To(Succeed())
	})

	It("refuses to start a new run until the stopped step returns", func() {
		Expect(sched.Start(&fakeSurface{w: 8, h: 8})).To(MatchError(ErrAlreadyRunning))
		Expect(created).To(Equal(1))

		close(gate.release)
		Eventually(fired).Should(Receive(Equal(1)))
		Expect(sched.Wait(context.Background())).To(Succeed())

		Expect(sched.Start(&fakeSurface{w: 8, h: 8})).To(Succeed())
		Expect(created).To(Equal(2))
		Expect(sched.State().FrameIndex).To(Equal(0))
		sched.Stop()
	})
})

var _ = Describe("Shutdown", func() {
	It("blocks until the in-flight step returns", func() {
		pacer := NewManualPacer()
		sim := &fakeSim{}
		gate := &gatedSim{fakeSim: sim, entered: make(chan struct{}), release: make(chan struct{})}
		sched := New(func(compute.Surface) (compute.Simulation, error) { return gate, nil }, pacer)
		Expect(sched.Start(&fakeSurface{w: 8, h: 8})).To(Succeed())

		go pacer.Fire(time.Now())
		Eventually(gate.entered).Should(BeClosed())

		done := make(chan error, 1)
		go func() { done <- sched.Shutdown(context.Background()) }()
		Consistently(done, 20*time.Millisecond).ShouldNot(Receive())

		close(gate.release)
		Eventually(done).Should(Receive(BeNil()))
		_, _, closes := sim.counts()
		Expect(closes).To(Equal(1))
	})
})

var _ = Describe("Stop right after Start", func() {
	It("leaves only the initial draw and no frames", func() {
		pacer := NewManualPacer()
		sim := &fakeSim{}
		factory, _ := factoryFor(sim)
		sched := New(factory, pacer)

		Expect(sched.Start(&fakeSurface{w: 8, h: 8})).To(Succeed())
		sched.Stop()
		Expect(pacer.Fire(time.Now())).To(Equal(0))

		steps, draws, closes := sim.counts()
		Expect(steps).To(Equal(0))
		Expect(draws).To(Equal(1))
		Expect(closes).To(Equal(1))
		Expect(sched.State().FrameIndex).To(Equal(0))
		Expect(sched.Wait(context.Background())).To(Succeed())
	})
})

var _ = Describe("TickerPacer", func() {
	It("runs the scheduler on its own until stopped", func() {
		sim := &fakeSim{}
		factory, _ := factoryFor(sim)
		sched := New(factory, &TickerPacer{Interval: time.Millisecond})
		Expect(sched.Start(&fakeSurface{w: 8, h: 8})).To(Succeed())

		Eventually(func() int { return sched.State().FrameIndex }).Should(BeNumerically(">=", 5))
		sched.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(sched.Wait(ctx)).To(Succeed())

		steps, _, _ := sim.counts()
		Consistently(func() int { s, _, _ := sim.counts(); return s }, 20*time.Millisecond).Should(Equal(steps))
	})

	It("cancels a pending request", func() {
		p := NewTickerPacer(1000)
		fired := make(chan struct{}, 1)
		cancel := p.RequestFrame(func(time.Time) { fired <- struct{}{} })
		cancel()
		Consistently(fired, 10*time.Millisecond).ShouldNot(Receive())
	})
})

type gatedSim struct {
	*fakeSim
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSim) Step(ctx context.Context) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.fakeSim.Step(ctx)
}
