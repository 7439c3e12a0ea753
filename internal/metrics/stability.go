package metrics

import "github.com/san-kum/fluidhost/internal/frame"

// Stability is the fraction of frames whose steps finished within the
// threshold. A failed frame always counts as a violation.
type Stability struct {
	name        string
	thresholdMs float64
	violations  int
	samples     int
}

func NewStability(thresholdMs float64) *Stability {
	return &Stability{
		name:        "on_budget",
		thresholdMs: thresholdMs,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) OnFrame(st frame.State) {
	s.samples++
	if st.Err != nil || (s.thresholdMs > 0 && st.LastStepDurationMs > s.thresholdMs) {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
