package config

import "github.com/san-kum/fluidhost/internal/compute"

func paramsWith(particles int, width, height, scale float64) compute.Params {
	p := compute.DefaultParams()
	p.Particles = particles
	p.Width = width
	p.Height = height
	p.Scale = scale
	return p
}
