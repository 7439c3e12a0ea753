package surface

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const brailleBlank = 0x2800

// Canvas is a braille character grid. Each cell holds 2x4 sub-pixels, so a
// canvas of Cols x Rows cells has a pixel size of (Cols*2) x (Rows*4).
//
// Drawing happens on a back buffer; Present publishes it so String can be
// read from another goroutine while the next frame is drawn.
type Canvas struct {
	cols, rows int
	grid       [][]rune

	mu     sync.RWMutex
	frame  string
	closed bool
}

func NewCanvas(cols, rows int) *Canvas {
	c := &Canvas{}
	c.alloc(max(cols, 1), max(rows, 1))
	return c
}

func (c *Canvas) alloc(cols, rows int) {
	c.cols, c.rows = cols, rows
	c.grid = make([][]rune, rows)
	for i := range c.grid {
		c.grid[i] = make([]rune, cols)
		for j := range c.grid[i] {
			c.grid[i][j] = brailleBlank
		}
	}
}

func (c *Canvas) Size() (int, int) {
	return c.cols * 2, c.rows * 4
}

// Resize takes a pixel size and rounds it up to whole cells.
func (c *Canvas) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid canvas size %dx%d", width, height)
	}
	if c.isClosed() {
		return ErrClosed
	}
	cols, rows := (width+1)/2, (height+3)/4
	if cols != c.cols || rows != c.rows {
		c.alloc(cols, rows)
	}
	return nil
}

func (c *Canvas) Clear() error {
	if c.isClosed() {
		return ErrClosed
	}
	for i := range c.grid {
		for j := range c.grid[i] {
			c.grid[i][j] = brailleBlank
		}
	}
	return nil
}

// Set turns on the sub-pixel at (x, y). Out of range pixels are ignored.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.cols || row >= c.rows {
		return
	}
	c.grid[row][col] |= pixelMap[y%4][x%2]
}

// Circle fills a disc. Radii under one sub-pixel set a single dot.
func (c *Canvas) Circle(x, y, r float64) {
	cx, cy := int(math.Floor(x)), int(math.Floor(y))
	if r < 1 {
		c.Set(cx, cy)
		return
	}
	ri := int(math.Ceil(r))
	r2 := r * r
	for dy := -ri; dy <= ri; dy++ {
		for dx := -ri; dx <= ri; dx++ {
			if float64(dx*dx+dy*dy) <= r2 {
				c.Set(cx+dx, cy+dy)
			}
		}
	}
}

func (c *Canvas) Present() error {
	if c.isClosed() {
		return ErrClosed
	}
	var b strings.Builder
	b.Grow(c.rows * (c.cols*3 + 1))
	for i, row := range c.grid {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(row))
	}

	c.mu.Lock()
	c.frame = b.String()
	c.mu.Unlock()
	return nil
}

// String returns the last presented frame.
func (c *Canvas) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frame
}

// Dots returns the pixel pattern of the cell at (col, row) of the back
// buffer.
func (c *Canvas) Dots(col, row int) rune {
	if col < 0 || row < 0 || col >= c.cols || row >= c.rows {
		return 0
	}
	return c.grid[row][col] - brailleBlank
}

// Close keeps the last frame readable and rejects further drawing.
func (c *Canvas) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *Canvas) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
