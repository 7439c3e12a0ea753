package compute

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/san-kum/fluidhost/internal/fault"
)

type recordingSurface struct {
	w, h     int
	circles  int
	presents int
	clears   int
	err      error
}

func (s *recordingSurface) Size() (int, int) { return s.w, s.h }
func (s *recordingSurface) Resize(w, h int) error {
	s.w, s.h = w, h
	return nil
}
func (s *recordingSurface) Clear() error {
	s.clears++
	s.circles = 0
	return s.err
}
func (s *recordingSurface) Circle(x, y, r float64) { s.circles++ }
func (s *recordingSurface) Present() error {
	s.presents++
	return s.err
}

func rangeInput(n int) []int32 {
	in := make([]int32, n)
	for i := range in {
		in[i] = int32(i)
	}
	return in
}

func newModule(t *testing.T, engine string, workers int) Module {
	t.Helper()
	ctx := context.Background()

	mod, err := NewRegistry().New(engine, Options{Image: KernelImage})
	require.NoError(t, err)
	require.NoError(t, mod.Init(ctx))
	require.NoError(t, mod.InitThreadPool(ctx, workers))
	t.Cleanup(func() { _ = mod.Close(ctx) })
	return mod
}

func TestReduceSumInvariantUnderWorkers(t *testing.T) {
	input := rangeInput(200_003)
	input[17] = -5000
	input[90_000] = math.MaxInt32

	var want int64
	for _, v := range input {
		want += int64(v)
	}

	for _, engine := range []string{EngineNative, EngineWasm} {
		for _, workers := range []int{1, 2, 3, 8} {
			mod := newModule(t, engine, workers)
			got, err := mod.ReduceSum(context.Background(), input)
			require.NoError(t, err)
			require.Equal(t, want, got, "engine=%s workers=%d", engine, workers)
		}
	}
}

func TestReduceSumEdgeCases(t *testing.T) {
	for _, engine := range []string{EngineNative, EngineWasm} {
		mod := newModule(t, engine, 4)

		got, err := mod.ReduceSum(context.Background(), nil)
		require.NoError(t, err)
		require.Zero(t, got, engine)

		got, err = mod.ReduceSum(context.Background(), []int32{-42})
		require.NoError(t, err)
		require.Equal(t, int64(-42), got, engine)
	}
}

func TestReduceSumBeforeThreadPool(t *testing.T) {
	ctx := context.Background()
	for _, engine := range []string{EngineNative, EngineWasm} {
		mod, err := NewRegistry().New(engine, Options{Image: KernelImage})
		require.NoError(t, err)
		require.NoError(t, mod.Init(ctx))

		_, err = mod.ReduceSum(ctx, []int32{1, 2})
		require.ErrorIs(t, err, fault.ErrNotInitialized, engine)
		require.NoError(t, mod.Close(ctx))
	}
}

func TestInitThreadPoolKeepsFirstSize(t *testing.T) {
	for _, engine := range []string{EngineNative, EngineWasm} {
		mod := newModule(t, engine, 3)
		require.NoError(t, mod.InitThreadPool(context.Background(), 7))
		require.Equal(t, 3, mod.Workers(), engine)
	}
}

func TestWasmRejectsBadImages(t *testing.T) {
	truncated := KernelImage[:len(KernelImage)-3]
	noSum := append([]byte(nil), KernelImage...)
	// rename the "sum" export to "sux"
	for i := 0; i+2 < len(noSum); i++ {
		if noSum[i] == 's' && noSum[i+1] == 'u' && noSum[i+2] == 'm' {
			noSum[i+2] = 'x'
		}
	}

	tests := []struct {
		name  string
		image []byte
	}{
		{"not wasm", []byte("<html>not a module</html>")},
		{"version 2", []byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00}},
		{"truncated", truncated},
		{"missing export", noSum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := NewWasm(Options{Image: tt.image})
			require.NoError(t, err)
			err = mod.Init(context.Background())
			require.ErrorIs(t, err, fault.ErrLoadFailure)
		})
	}

	_, err := NewWasm(Options{})
	require.ErrorIs(t, err, fault.ErrLoadFailure)
}

func TestWasmHasNoSimulation(t *testing.T) {
	mod := newModule(t, EngineWasm, 1)
	_, err := mod.NewSimulation(DefaultParams(), &recordingSurface{w: 10, h: 10})
	require.ErrorIs(t, err, fault.ErrCapabilityUnsupported)
}

func TestCheckHeader(t *testing.T) {
	require.True(t, CheckHeader(KernelImage))
	require.False(t, CheckHeader(nil))
	require.False(t, CheckHeader([]byte{0x00, 0x61, 0x73, 0x6d}))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, []string{EngineNative, EngineWasm}, r.List())

	_, err := r.Engine("cuda")
	require.Error(t, err)

	e, err := r.Engine(EngineWasm)
	require.NoError(t, err)
	require.True(t, e.NeedsImage)
}

func smallParams() Params {
	p := DefaultParams()
	p.Particles = 600
	p.Width, p.Height = 0.5, 0.5
	return p
}

func TestFluidStepIsDeterministicAcrossWorkers(t *testing.T) {
	run := func(workers int) float64 {
		mod := newModule(t, EngineNative, workers)
		sim, err := mod.NewSimulation(smallParams(), &recordingSurface{w: 100, h: 100})
		require.NoError(t, err)
		defer sim.Close()

		for i := 0; i < 20; i++ {
			require.NoError(t, sim.Step(context.Background()))
		}
		return sim.(Checksummer).Checksum()
	}

	one := run(1)
	require.Equal(t, one, run(4))
	require.False(t, math.IsNaN(one))
}

func TestFluidFallsUnderGravity(t *testing.T) {
	mod := newModule(t, EngineNative, 2)
	p := smallParams()
	sim, err := mod.NewSimulation(p, &recordingSurface{w: 100, h: 100})
	require.NoError(t, err)

	before := sim.(Checksummer).Checksum()
	for i := 0; i < 50; i++ {
		require.NoError(t, sim.Step(context.Background()))
	}
	after := sim.(Checksummer).Checksum()
	require.Less(t, after, before)

	f := sim.(*fluid)
	for i := 0; i < f.n; i++ {
		require.GreaterOrEqual(t, f.px[i], kernelRadius)
		require.LessOrEqual(t, f.px[i], p.Width-2*kernelRadius)
		require.GreaterOrEqual(t, f.py[i], kernelRadius)
	}
}

func TestFluidLayout(t *testing.T) {
	mod := newModule(t, EngineNative, 1)
	p := smallParams()
	sim, err := mod.NewSimulation(p, &recordingSurface{w: 100, h: 100})
	require.NoError(t, err)

	f := sim.(*fluid)
	require.Len(t, f.px, p.Particles)
	require.InDelta(t, 0.1*p.Width, f.px[0], 1e-12)
	require.InDelta(t, kernelRadius, f.py[0], 1e-12)
	for i := range f.px {
		require.LessOrEqual(t, f.px[i], 0.9*p.Width+1.5*particleSize+0.0001)
	}
}

func TestFluidDrawAndClose(t *testing.T) {
	mod := newModule(t, EngineNative, 2)
	s := &recordingSurface{w: 200, h: 100}
	sim, err := mod.NewSimulation(smallParams(), s)
	require.NoError(t, err)

	require.NoError(t, sim.Draw())
	require.Equal(t, 600, s.circles)
	require.Equal(t, 1, s.presents)

	require.NoError(t, sim.Resize(50, 50))
	w, h := s.Size()
	require.Equal(t, 50, w)
	require.Equal(t, 50, h)
	require.Error(t, sim.Resize(0, 10))

	require.NoError(t, sim.Close())
	require.Equal(t, 600, s.circles, "closing must leave the last frame")
	require.Error(t, sim.Step(context.Background()))
	require.Error(t, sim.Draw())
}

func TestFluidDrawPropagatesSurfaceError(t *testing.T) {
	mod := newModule(t, EngineNative, 1)
	s := &recordingSurface{w: 10, h: 10, err: errors.New("context lost")}
	sim, err := mod.NewSimulation(smallParams(), s)
	require.NoError(t, err)
	require.Error(t, sim.Draw())

	s.err = nil
	s.w = 0
	require.Error(t, sim.Draw())
}

func TestNewSimulationValidates(t *testing.T) {
	mod := newModule(t, EngineNative, 1)

	bad := smallParams()
	bad.Particles = 0
	_, err := mod.NewSimulation(bad, &recordingSurface{w: 10, h: 10})
	require.Error(t, err)

	_, err = mod.NewSimulation(smallParams(), nil)
	require.ErrorIs(t, err, fault.ErrSurfaceInvalid)

	unready := NewNative(Options{})
	_, err = unready.NewSimulation(smallParams(), &recordingSurface{w: 10, h: 10})
	require.ErrorIs(t, err, fault.ErrNotInitialized)
}

func BenchmarkReduceSum(b *testing.B) {
	ctx := context.Background()
	input := rangeInput(1 << 20)
	for _, engine := range []string{EngineNative, EngineWasm} {
		b.Run(engine, func(b *testing.B) {
			mod, _ := NewRegistry().New(engine, Options{Image: KernelImage})
			_ = mod.Init(ctx)
			_ = mod.InitThreadPool(ctx, 4)
			defer mod.Close(ctx)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := mod.ReduceSum(ctx, input); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
