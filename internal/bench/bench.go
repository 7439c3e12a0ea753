// Package bench times repeated parallel reductions on an initialized
// compute module.
package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reducer is the part of a loaded module the harness needs.
type Reducer interface {
	ReduceSum(ctx context.Context, input []int32) (int64, error)
	Workers() int
	Engine() string
}

type Result struct {
	RunID      uuid.UUID `json:"run_id"`
	Engine     string    `json:"engine"`
	Workers    int       `json:"workers"`
	InputSize  int       `json:"input_size"`
	Iterations int       `json:"iterations"`

	// PerIteration is the value every iteration returned.
	PerIteration int64 `json:"per_iteration"`
	Accumulated  int64 `json:"accumulated"`

	// TotalElapsedMs is one measurement spanning all iterations.
	TotalElapsedMs float64 `json:"total_elapsed_ms"`
}

func (r Result) MeanIterationMs() float64 {
	if r.Iterations == 0 {
		return 0
	}
	return r.TotalElapsedMs / float64(r.Iterations)
}

// Throughput is input elements reduced per second.
func (r Result) Throughput() float64 {
	if r.TotalElapsedMs <= 0 {
		return 0
	}
	return float64(r.InputSize) * float64(r.Iterations) / (r.TotalElapsedMs / 1000)
}

var ErrInconsistent = errors.New("bench: iterations disagree")

// Run reduces input iterations times in sequence. Any error aborts the whole
// run and no partial result is returned. An iteration that disagrees with
// the first one is an error.
func Run(ctx context.Context, r Reducer, input []int32, iterations int) (Result, error) {
	if iterations < 1 {
		return Result{}, fmt.Errorf("bench: iterations must be positive, got %d", iterations)
	}

	var (
		acc   int64
		first int64
	)
	start := time.Now()
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		v, err := r.ReduceSum(ctx, input)
		if err != nil {
			return Result{}, fmt.Errorf("bench: iteration %d: %w", i, err)
		}
		if i == 0 {
			first = v
		} else if v != first {
			return Result{}, fmt.Errorf("%w: iteration %d returned %d, first returned %d", ErrInconsistent, i, v, first)
		}
		acc += v
	}
	elapsed := time.Since(start)

	return Result{
		RunID:          uuid.New(),
		Engine:         r.Engine(),
		Workers:        r.Workers(),
		InputSize:      len(input),
		Iterations:     iterations,
		PerIteration:   first,
		Accumulated:    acc,
		TotalElapsedMs: float64(elapsed) / float64(time.Millisecond),
	}, nil
}

// RangeInput returns 0, 1, ..., n-1.
func RangeInput(n int) []int32 {
	in := make([]int32, max(n, 0))
	for i := range in {
		in[i] = int32(i)
	}
	return in
}
