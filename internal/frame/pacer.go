package frame

import (
	"sync"
	"time"
)

// Pacer schedules a callback for the next display frame, in the manner of
// requestAnimationFrame. The returned function cancels the request if it has
// not run yet.
type Pacer interface {
	RequestFrame(fn func(now time.Time)) (cancel func())
}

// TickerPacer fires each request after a fixed frame interval.
type TickerPacer struct {
	Interval time.Duration
}

// NewTickerPacer paces at fps frames per second. fps <= 0 means 60.
func NewTickerPacer(fps int) *TickerPacer {
	if fps <= 0 {
		fps = 60
	}
	return &TickerPacer{Interval: time.Second / time.Duration(fps)}
}

func (p *TickerPacer) RequestFrame(fn func(now time.Time)) func() {
	t := time.AfterFunc(p.Interval, func() { fn(time.Now()) })
	return func() { t.Stop() }
}

type manualRequest struct {
	fn        func(time.Time)
	cancelled bool
}

// ManualPacer queues requests until Fire is called. It drives tests and the
// terminal view, where frames follow the UI's own tick.
type ManualPacer struct {
	mu      sync.Mutex
	pending []*manualRequest
}

func NewManualPacer() *ManualPacer {
	return &ManualPacer{}
}

func (p *ManualPacer) RequestFrame(fn func(now time.Time)) func() {
	req := &manualRequest{fn: fn}
	p.mu.Lock()
	p.pending = append(p.pending, req)
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		req.cancelled = true
		p.mu.Unlock()
	}
}

// Fire runs every request queued before the call and returns how many ran.
// Requests made by the callbacks wait for the next Fire.
func (p *ManualPacer) Fire(now time.Time) int {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	ran := 0
	for _, req := range batch {
		p.mu.Lock()
		skip := req.cancelled
		p.mu.Unlock()
		if skip {
			continue
		}
		req.fn(now)
		ran++
	}
	return ran
}

// Pending counts queued requests that have not been cancelled.
func (p *ManualPacer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, req := range p.pending {
		if !req.cancelled {
			n++
		}
	}
	return n
}
