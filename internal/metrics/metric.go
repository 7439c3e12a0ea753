// Package metrics summarizes a scheduler run from the frames it reports.
package metrics

import "github.com/san-kum/fluidhost/internal/frame"

// Metric observes completed frames and reduces them to one value.
type Metric interface {
	frame.Observer
	Name() string
	Value() float64
	Reset()
}

// Set fans frames out to several metrics.
type Set []Metric

func (s Set) OnFrame(st frame.State) {
	for _, m := range s {
		m.OnFrame(st)
	}
}

func (s Set) Values() map[string]float64 {
	out := make(map[string]float64, len(s))
	for _, m := range s {
		out[m.Name()] = m.Value()
	}
	return out
}

func (s Set) Reset() {
	for _, m := range s {
		m.Reset()
	}
}

// Default is the set recorded for headless runs. budgetMs is the per-frame
// step time considered on schedule.
func Default(budgetMs float64) Set {
	return Set{NewStepTime(), NewPeakStep(), NewFrameCount(), NewStability(budgetMs)}
}
