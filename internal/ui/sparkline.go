package ui

import "strings"

// Sparkline renders recent samples as a row of block characters. The TUI
// uses it for per-batch merge durations.
type Sparkline struct {
	samples []float64 // ring buffer
	width   int
	head    int
	count   int
	max     float64
}

// SparklineChars are the eight bar heights, lowest first.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// NewSparkline creates a sparkline holding width samples.
func NewSparkline(width int) *Sparkline {
	if width <= 0 {
		width = 40
	}
	return &Sparkline{
		samples: make([]float64, width),
		width:   width,
	}
}

// Add appends a sample, overwriting the oldest once full.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % s.width
	s.count++

	if value > s.max {
		s.max = value
	}
	// Old peaks fall out of the window.
	if s.count%s.width == 0 {
		s.recalculateMax()
	}
}

func (s *Sparkline) recalculateMax() {
	s.max = 0
	for _, v := range s.samples {
		if v > s.max {
			s.max = v
		}
	}
}

// Render returns up to width of the most recent samples, oldest first. With
// fewer samples than width the result is right padded with spaces.
func (s *Sparkline) Render(width int) string {
	if width <= 0 || width > s.width {
		width = s.width
	}

	n := min(s.count, s.width)
	if n > width {
		n = width
	}

	var sb strings.Builder
	sb.Grow(width * 3)

	// Index of the oldest sample we show.
	start := (s.head - n + s.width) % s.width
	for i := 0; i < n; i++ {
		sb.WriteRune(s.bar(s.samples[(start+i)%s.width]))
	}
	for i := n; i < width; i++ {
		sb.WriteRune(' ')
	}
	return sb.String()
}

func (s *Sparkline) bar(v float64) rune {
	if s.max <= 0 || v <= 0 {
		return SparklineChars[0]
	}
	idx := int(v / s.max * float64(len(SparklineChars)-1))
	idx = max(0, min(idx, len(SparklineChars)-1))
	return SparklineChars[idx]
}

// Clear drops all samples.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.head = 0
	s.count = 0
	s.max = 0
}

// Count returns the number of samples added.
func (s *Sparkline) Count() int {
	return s.count
}

// Max returns the largest sample in the window.
func (s *Sparkline) Max() float64 {
	return s.max
}
