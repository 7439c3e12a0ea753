package compute

import "fmt"

// Params configures a particle fluid simulation.
type Params struct {
	Particles int     `yaml:"particles"`
	Width     float64 `yaml:"width"`
	Height    float64 `yaml:"height"`
	Scale     float64 `yaml:"scale"`
	Seed      int64   `yaml:"seed"`
}

// DefaultParams is a dam break of 8000 particles in a 1.5 x 1.5 field drawn
// at 900 pixels per unit.
func DefaultParams() Params {
	return Params{
		Particles: 8000,
		Width:     1.5,
		Height:    1.5,
		Scale:     900,
		Seed:      12345,
	}
}

func (p Params) Validate() error {
	if p.Particles <= 0 {
		return fmt.Errorf("particles must be positive, got %d", p.Particles)
	}
	minSide := 4 * kernelRadius
	if p.Width < minSide || p.Height < minSide {
		return fmt.Errorf("field %gx%g is smaller than the minimum side %g", p.Width, p.Height, minSide)
	}
	if p.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %g", p.Scale)
	}
	return nil
}

// SurfaceSize is the pixel size of a surface that shows the whole field at
// the configured scale.
func (p Params) SurfaceSize() (int, int) {
	return int(p.Width * p.Scale), int(p.Height * p.Scale)
}
