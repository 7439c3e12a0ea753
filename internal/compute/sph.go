package compute

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/fluidhost/internal/pool"
)

const (
	dt             = 0.001
	particleSize   = 0.0085
	kernelRadius   = 1.2 * particleSize
	kernelRadiusSq = kernelRadius * kernelRadius
	targetDensity  = 300.0
	stiffness      = 3.0
	viscosity      = 0.0002
	particleMass   = 2.5 / 600.0 / 600.0
	gravity        = -9.8
	eps            = 1e-30

	// particles per pool task
	fluidChunk = 256
)

// 2D smoothing kernels normalized for radius h.
var (
	poly6     = 4.0 / (math.Pi * math.Pow(kernelRadius, 8))
	spikyGrad = -10.0 / (math.Pi * math.Pow(kernelRadius, 5))
	viscLap   = 40.0 / (math.Pi * math.Pow(kernelRadius, 5))
)

var errDiverged = errors.New("fluid state diverged")

// fluid is a smoothed particle hydrodynamics solver on a uniform grid of
// cells one kernel radius wide.
type fluid struct {
	p       Params
	pool    *pool.Pool
	surface Surface

	n              int
	px, py, vx, vy []float64
	fx, fy         []float64
	rho, press     []float64

	nx, ny int
	cells  [][]int32

	closed bool
}

func newFluid(p Params, wp *pool.Pool, s Surface) *fluid {
	f := &fluid{
		p:       p,
		pool:    wp,
		surface: s,
		nx:      int(math.Ceil(p.Width / kernelRadius)),
		ny:      int(math.Ceil(p.Height / kernelRadius)),
	}
	f.cells = make([][]int32, f.nx*f.ny)
	f.layout()
	return f
}

// layout packs particles in rows from the floor, left to right between 10%
// and 90% of the field width, with a small seeded jitter.
func (f *fluid) layout() {
	rng := rand.New(rand.NewSource(f.p.Seed))
	n := f.p.Particles
	f.px = make([]float64, 0, n)
	f.py = make([]float64, 0, n)

	spacing := 1.5 * particleSize
	for y := kernelRadius; len(f.px) < n; y += spacing {
		for x := 0.1 * f.p.Width; len(f.px) < n; {
			f.px = append(f.px, x)
			f.py = append(f.py, y)
			x += spacing + 0.0001*rng.Float64()
			if x > 0.9*f.p.Width {
				break
			}
		}
	}

	f.n = n
	f.vx = make([]float64, n)
	f.vy = make([]float64, n)
	f.fx = make([]float64, n)
	f.fy = make([]float64, n)
	f.rho = make([]float64, n)
	f.press = make([]float64, n)
}

func (f *fluid) Step(ctx context.Context) error {
	if f.closed {
		return errors.New("simulation is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.registerCells()
	f.pool.ParallelFor(f.n, fluidChunk, f.densityPressure)
	f.pool.ParallelFor(f.n, fluidChunk, f.forces)
	f.pool.ParallelFor(f.n, fluidChunk, f.integrate)

	for i := 0; i < f.n; i++ {
		if math.IsNaN(f.px[i]) || math.IsNaN(f.py[i]) || math.IsInf(f.px[i], 0) || math.IsInf(f.py[i], 0) {
			return fmt.Errorf("particle %d: %w", i, errDiverged)
		}
	}
	return nil
}

func (f *fluid) cellOf(x, y float64) (int, int) {
	ix := min(max(int(x/kernelRadius), 0), f.nx-1)
	iy := min(max(int(y/kernelRadius), 0), f.ny-1)
	return ix, iy
}

func (f *fluid) registerCells() {
	for i := range f.cells {
		f.cells[i] = f.cells[i][:0]
	}
	for i := 0; i < f.n; i++ {
		ix, iy := f.cellOf(f.px[i], f.py[i])
		id := iy*f.nx + ix
		f.cells[id] = append(f.cells[id], int32(i))
	}
}

// neighbors calls fn for every particle in the 3x3 block of cells around i.
func (f *fluid) neighbors(i int, fn func(j int)) {
	gx, gy := f.cellOf(f.px[i], f.py[i])
	for cx := max(gx-1, 0); cx <= min(gx+1, f.nx-1); cx++ {
		for cy := max(gy-1, 0); cy <= min(gy+1, f.ny-1); cy++ {
			for _, j := range f.cells[cy*f.nx+cx] {
				fn(int(j))
			}
		}
	}
}

func (f *fluid) densityPressure(start, end int) {
	for i := start; i < end; i++ {
		var d float64
		f.neighbors(i, func(j int) {
			dx, dy := f.px[j]-f.px[i], f.py[j]-f.py[i]
			r2 := dx*dx + dy*dy
			if r2 < kernelRadiusSq {
				w := kernelRadiusSq - r2
				d += particleMass * poly6 * w * w * w
			}
		})
		f.rho[i] = d
		f.press[i] = stiffness * (d - targetDensity)
	}
}

func (f *fluid) forces(start, end int) {
	for i := start; i < end; i++ {
		var fpx, fpy, fvx, fvy float64
		f.neighbors(i, func(j int) {
			if j == i {
				return
			}
			dx, dy := f.px[j]-f.px[i], f.py[j]-f.py[i]
			r := math.Sqrt(dx*dx + dy*dy)
			if r <= eps || r >= kernelRadius {
				return
			}

			q := kernelRadius - r
			shared := (f.press[i] + f.press[j]) / 2
			pc := -particleMass * shared * spikyGrad * q * q * q / f.rho[j]
			fpx += pc * dx / r
			fpy += pc * dy / r

			vc := viscosity * particleMass * viscLap * q / f.rho[j]
			fvx += vc * (f.vx[j] - f.vx[i])
			fvy += vc * (f.vy[j] - f.vy[i])
		})
		f.fx[i] = fpx + fvx
		f.fy[i] = fpy + fvy + f.rho[i]*gravity
	}
}

func (f *fluid) integrate(start, end int) {
	w, h := f.p.Width, f.p.Height
	for i := start; i < end; i++ {
		f.vx[i] += f.fx[i] * dt / f.rho[i]
		f.vy[i] += f.fy[i] * dt / f.rho[i]
		f.px[i] += f.vx[i] * dt
		f.py[i] += f.vy[i] * dt

		if f.py[i]-kernelRadius < 0 {
			f.py[i] = kernelRadius
			f.vy[i] = -0.5
		}
		if f.py[i]+2*kernelRadius > h {
			f.py[i] = h - 2*kernelRadius
			f.vy[i] = -0.5
		}
		if f.px[i]-kernelRadius < 0 {
			f.px[i] = kernelRadius
			f.vx[i] *= -0.5
		}
		if f.px[i]+2*kernelRadius > w {
			f.px[i] = w - 2*kernelRadius
			f.vx[i] *= -0.5
		}
	}
}

// Draw fits the field to the surface, keeping the aspect ratio, with y
// pointing up.
func (f *fluid) Draw() error {
	if f.closed {
		return errors.New("simulation is closed")
	}
	sw, sh := f.surface.Size()
	if sw <= 0 || sh <= 0 {
		return fmt.Errorf("surface has no area: %dx%d", sw, sh)
	}
	if err := f.surface.Clear(); err != nil {
		return err
	}

	scale := math.Min(float64(sw)/f.p.Width, float64(sh)/f.p.Height)
	r := 0.5 * particleSize * scale
	for i := 0; i < f.n; i++ {
		f.surface.Circle(f.px[i]*scale, float64(sh)-f.py[i]*scale, r)
	}
	return f.surface.Present()
}

func (f *fluid) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	return f.surface.Resize(width, height)
}

// Close releases solver state. The surface keeps the last frame.
func (f *fluid) Close() error {
	f.closed = true
	f.cells = nil
	return nil
}

// Checksum is the sum of all particle heights.
func (f *fluid) Checksum() float64 {
	var s float64
	for _, y := range f.py {
		s += y
	}
	return s
}
