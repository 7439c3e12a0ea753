package surface

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

type circle struct{ x, y, r float64 }

// SVG records circles and renders each presented frame as a standalone SVG
// document.
type SVG struct {
	Background string
	Fill       string

	width, height int
	pending       []circle

	mu     sync.RWMutex
	doc    string
	closed bool
}

func NewSVG(width, height int) *SVG {
	return &SVG{
		Background: "#0a0a0a",
		Fill:       "#00ff00",
		width:      max(width, 1),
		height:     max(height, 1),
	}
}

func (s *SVG) Size() (int, int) { return s.width, s.height }

func (s *SVG) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid svg size %dx%d", width, height)
	}
	s.width, s.height = width, height
	return nil
}

func (s *SVG) Clear() error {
	if s.isClosed() {
		return ErrClosed
	}
	s.pending = s.pending[:0]
	return nil
}

func (s *SVG) Circle(x, y, r float64) {
	s.pending = append(s.pending, circle{x, y, r})
}

func (s *SVG) Present() error {
	if s.isClosed() {
		return ErrClosed
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
<g fill="%s">
`, s.width, s.height, s.width, s.height, s.Background, s.Fill)

	for _, c := range s.pending {
		fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="%.1f"/>
`, c.x, c.y, c.r)
	}
	sb.WriteString("</g>\n</svg>")

	s.mu.Lock()
	s.doc = sb.String()
	s.mu.Unlock()
	return nil
}

// String returns the last presented document.
func (s *SVG) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

func (s *SVG) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, s.String())
	return int64(n), err
}

func (s *SVG) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *SVG) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
