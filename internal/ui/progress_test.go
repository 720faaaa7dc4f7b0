package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestProgressTracker_ProgressAndETA(t *testing.T) {
	// Given
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := NewProgressTracker(clock.now)
	p.SetStage(StageAnalyzing, 10)

	// When: half the pages finish in ten seconds
	clock.advance(10 * time.Second)
	p.Update(5, "https://go.dev")

	// Then
	stats := p.Stats()
	assert.Equal(t, StageAnalyzing, stats.Stage)
	assert.InDelta(t, 0.5, stats.Progress, 1e-9)
	assert.Equal(t, 10*time.Second, stats.ETA)
	assert.Equal(t, "https://go.dev", stats.CurrentURL)
	assert.InDelta(t, 0.5, stats.Speed.Current, 1e-9)
	assert.InDelta(t, 0.5, stats.Speed.Peak, 1e-9)
}

func TestProgressTracker_SpeedIgnoresShortIntervals(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewProgressTracker(clock.now)
	p.SetStage(StageAnalyzing, 100)

	clock.advance(100 * time.Millisecond)
	p.Update(3, "")

	assert.Zero(t, p.Stats().Speed.Current)
}

func TestProgressTracker_ProgressCapsAndStageReset(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewProgressTracker(clock.now)
	p.SetStage(StageAnalyzing, 2)
	p.Update(5, "")
	p.AddError(ErrorEvent{Err: "x"})
	p.AddError(ErrorEvent{Err: "y", IsWarn: true})

	stats := p.Stats()
	assert.Equal(t, 1.0, stats.Progress)
	assert.Zero(t, stats.ETA)
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 1, stats.WarnCount)
	assert.Equal(t, "y", stats.LastError)

	p.SetStage(StageComplete, 0)
	stats = p.Stats()
	assert.Zero(t, stats.Current)
	assert.Zero(t, stats.Progress)
}

func TestSparkline_Render(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		width   int
		want    string
	}{
		{"empty", nil, 4, "▁▁▁▁"},
		{"scaled to peak", []float64{0, 8}, 2, "▁█"},
		{"padded", []float64{4}, 3, "█  "},
		{"most recent kept", []float64{8, 0, 8}, 2, "▁█"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSparkline(4)
			for _, v := range tt.samples {
				s.Add(v)
			}
			assert.Equal(t, tt.want, s.Render(tt.width))
		})
	}
}

func TestSparkline_WrapsAndClears(t *testing.T) {
	s := NewSparkline(2)
	s.Add(1)
	s.Add(2)
	s.Add(4)

	assert.Equal(t, "▄█", s.Render(0))

	s.Clear()
	assert.Zero(t, s.Count())
	assert.Equal(t, "▁▁", s.Render(0))
}
