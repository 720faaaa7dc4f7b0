package ui

import "strings"

// SparklineChars are the eight bar heights, lowest first.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps a ring of recent samples and renders them as bars.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

// NewSparkline creates a sparkline holding size samples.
func NewSparkline(size int) *Sparkline {
	if size <= 0 {
		size = 60
	}
	return &Sparkline{samples: make([]float64, size)}
}

// Add appends a sample, overwriting the oldest when full.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % len(s.samples)
	s.count++
}

// Clear drops every sample.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.head, s.count = 0, 0
}

// Count returns how many samples were added since the last Clear.
func (s *Sparkline) Count() int { return s.count }

// recent returns up to n samples, oldest first.
func (s *Sparkline) recent(n int) []float64 {
	have := min(s.count, len(s.samples))
	n = min(n, have)
	start := 0
	if s.count >= len(s.samples) {
		start = s.head
	}
	out := make([]float64, 0, n)
	for i := have - n; i < have; i++ {
		out = append(out, s.samples[(start+i)%len(s.samples)])
	}
	return out
}

// Render draws the most recent width samples, scaled to their maximum and
// right-padded with spaces. A width of zero or less uses the ring size.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}
	if s.count == 0 {
		return strings.Repeat(string(SparklineChars[0]), width)
	}

	vals := s.recent(width)
	peak := 1.0
	for _, v := range vals {
		peak = max(peak, v)
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	for _, v := range vals {
		idx := int(v / peak * float64(len(SparklineChars)-1))
		idx = max(0, min(idx, len(SparklineChars)-1))
		sb.WriteRune(SparklineChars[idx])
	}
	sb.WriteString(strings.Repeat(" ", width-len(vals)))
	return sb.String()
}
