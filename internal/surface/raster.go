package surface

import (
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/gogpu/gg"
)

var (
	rasterBackground = gg.Hex("#0a0a14")
	rasterParticle   = gg.Hex("#4fa3ff")
)

// Raster is an anti-aliased pixel surface. Circles are collected into one
// path per frame and filled on Present.
type Raster struct {
	mu     sync.Mutex
	dc     *gg.Context
	closed bool
}

func NewRaster(width, height int) *Raster {
	dc := gg.NewContext(max(width, 1), max(height, 1))
	dc.ClearWithColor(rasterBackground)
	return &Raster{dc: dc}
}

func (r *Raster) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dc.Width(), r.dc.Height()
}

func (r *Raster) Resize(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return r.dc.Resize(width, height)
}

func (r *Raster) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.dc.ClearPath()
	r.dc.ClearWithColor(rasterBackground)
	return nil
}

func (r *Raster) Circle(x, y, radius float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.dc.DrawCircle(x, y, max(radius, 0.5))
}

func (r *Raster) Present() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.dc.SetColor(rasterParticle.Color())
	if err := r.dc.Fill(); err != nil {
		return fmt.Errorf("fill particles: %w", err)
	}
	return nil
}

// Image returns the last presented frame.
func (r *Raster) Image() image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dc.Image()
}

func (r *Raster) SavePNG(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dc.SavePNG(path)
}

func (r *Raster) EncodePNG(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dc.EncodePNG(w)
}

// Close frees the drawing context. The surface rejects drawing afterwards.
func (r *Raster) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.dc.Close()
}
