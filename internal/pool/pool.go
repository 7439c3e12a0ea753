// Package pool owns worker-count policy and the fixed goroutine pool that
// backs the native compute engine.
package pool

import (
	"sync"
)

// Range is a half-open index interval [Start, End).
type Range struct {
	Start, End int
}

func (r Range) Len() int { return r.End - r.Start }

// Partition splits [0, n) into at most parts contiguous ranges of nearly
// equal length. Empty ranges are never returned; n <= 0 yields nil.
func Partition(n, parts int) []Range {
	if n <= 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if parts > n {
		parts = n
	}

	chunk := (n + parts - 1) / parts
	out := make([]Range, 0, parts)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		out = append(out, Range{Start: start, End: end})
	}
	return out
}

type task struct {
	fn   func(start, end int)
	r    Range
	done *sync.WaitGroup
}

// Pool is a fixed set of long-lived worker goroutines. Workers are started by
// New and stopped by Close; callers never start goroutines of their own.
type Pool struct {
	workers int
	tasks   chan task

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		workers: workers,
		tasks:   make(chan task),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for t := range p.tasks {
		t.fn(t.r.Start, t.r.End)
		t.done.Done()
	}
}

func (p *Pool) Workers() int { return p.workers }

// ParallelFor runs fn over [0, n) split across the workers and blocks until
// every chunk has returned. Ranges shorter than minChunk run on the calling
// goroutine, as does everything once the pool is closed. fn must not call
// back into the same pool.
func (p *Pool) ParallelFor(n, minChunk int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if minChunk < 1 {
		minChunk = 1
	}

	parts := min(p.workers, n/minChunk)
	if parts <= 1 {
		fn(0, n)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		fn(0, n)
		return
	}

	var done sync.WaitGroup
	ranges := Partition(n, parts)
	done.Add(len(ranges))
	for _, r := range ranges {
		p.tasks <- task{fn: fn, r: r, done: &done}
	}
	done.Wait()
}

// Close stops the workers and waits for them to exit. It is safe to call more
// than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
