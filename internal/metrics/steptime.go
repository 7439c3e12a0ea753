package metrics

import (
	"math"

	"github.com/san-kum/fluidhost/internal/frame"
)

// StepTime is the mean step duration in milliseconds over successful frames.
type StepTime struct {
	name    string
	samples int
	total   float64
}

func NewStepTime() *StepTime {
	return &StepTime{name: "mean_step_ms"}
}

func (s *StepTime) Name() string { return s.name }

func (s *StepTime) OnFrame(st frame.State) {
	if st.Err != nil {
		return
	}
	s.total += st.LastStepDurationMs
	s.samples++
}

func (s *StepTime) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return s.total / float64(s.samples)
}

func (s *StepTime) Reset() {
	s.total = 0
	s.samples = 0
}

// PeakStep is the slowest step duration seen, in milliseconds.
type PeakStep struct {
	name string
	peak float64
}

func NewPeakStep() *PeakStep {
	return &PeakStep{name: "peak_step_ms"}
}

func (p *PeakStep) Name() string { return p.name }

func (p *PeakStep) OnFrame(st frame.State) {
	if st.Err != nil {
		return
	}
	p.peak = math.Max(p.peak, st.LastStepDurationMs)
}

func (p *PeakStep) Value() float64 { return p.peak }

func (p *PeakStep) Reset() { p.peak = 0 }

// FrameCount is the highest frame index reported.
type FrameCount struct {
	name  string
	index int
}

func NewFrameCount() *FrameCount {
	return &FrameCount{name: "frames"}
}

func (f *FrameCount) Name() string { return f.name }

func (f *FrameCount) OnFrame(st frame.State) {
	f.index = max(f.index, st.FrameIndex)
}

func (f *FrameCount) Value() float64 { return float64(f.index) }

func (f *FrameCount) Reset() { f.index = 0 }
