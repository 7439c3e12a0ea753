// Package surface provides drawing targets for the particle simulation: a
// braille terminal canvas, an anti-aliased raster, and an SVG recorder.
package surface

import (
	"github.com/san-kum/fluidhost/internal/compute"
	"github.com/san-kum/fluidhost/internal/fault"
)

// ErrClosed is returned by drawing calls on a closed surface.
var ErrClosed = fault.Newf(fault.SurfaceInvalid, "draw", "surface closed")

var (
	_ compute.Surface = (*Canvas)(nil)
	_ compute.Surface = (*Raster)(nil)
	_ compute.Surface = (*SVG)(nil)
)
