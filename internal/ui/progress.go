package ui

import (
	"sync"
	"time"
)

const (
	speedInterval      = 500 * time.Millisecond
	etaSmoothingFactor = 0.3
	speedSmoothing     = 0.2
)

// ProgressTracker accumulates progress for the TUI. It is safe for
// concurrent use.
type ProgressTracker struct {
	mu  sync.Mutex
	now func() time.Time

	stage      Stage
	current    int
	total      int
	currentURL string
	stageStart time.Time
	errors     int
	warnings   int
	lastError  string

	lastETA       time.Duration
	lastCurrent   int
	lastSpeedCalc time.Time
	currentSpeed  float64
	avgSpeed      float64
	peakSpeed     float64
	samples       int
	sparkline     *Sparkline
}

// SpeedStats is pages per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of a tracker.
type ProgressStats struct {
	Stage      Stage
	Current    int
	Total      int
	Progress   float64
	ETA        time.Duration
	CurrentURL string
	ErrorCount int
	WarnCount  int
	LastError  string
	Speed      SpeedStats
}

// NewProgressTracker creates a tracker in the scanning stage.
func NewProgressTracker(now func() time.Time) *ProgressTracker {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &ProgressTracker{
		now:           now,
		stage:         StageScanning,
		stageStart:    t,
		lastSpeedCalc: t,
		sparkline:     NewSparkline(60),
	}
}

// SetStage moves to stage and resets the counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.now()
	p.stage = stage
	p.total = total
	p.current = 0
	p.currentURL = ""
	p.stageStart = t
	p.lastETA = 0
	p.lastCurrent = 0
	p.lastSpeedCalc = t
	p.currentSpeed, p.avgSpeed, p.peakSpeed = 0, 0, 0
	p.samples = 0
	p.sparkline.Clear()
}

// Update applies a progress event within the current stage.
func (p *ProgressTracker) Update(current int, url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if url != "" {
		p.currentURL = url
	}

	t := p.now()
	elapsed := t.Sub(p.lastSpeedCalc)
	if elapsed < speedInterval {
		return
	}
	if delta := current - p.lastCurrent; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.currentSpeed = speed
		p.samples++
		if p.samples == 1 {
			p.avgSpeed = speed
		} else {
			p.avgSpeed = speedSmoothing*speed + (1-speedSmoothing)*p.avgSpeed
		}
		p.peakSpeed = max(p.peakSpeed, speed)
		p.sparkline.Add(speed)
	}
	p.lastCurrent = current
	p.lastSpeedCalc = t
}

// AddError counts a failed or restricted record.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
	p.lastError = event.Err
}

// Stats returns a snapshot. It takes the write lock because ETA smoothing
// updates state.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var progress float64
	if p.total > 0 {
		progress = min(float64(p.current)/float64(p.total), 1.0)
	}
	return ProgressStats{
		Stage:      p.stage,
		Current:    p.current,
		Total:      p.total,
		Progress:   progress,
		ETA:        p.calculateETA(),
		CurrentURL: p.currentURL,
		ErrorCount: p.errors,
		WarnCount:  p.warnings,
		LastError:  p.lastError,
		Speed:      SpeedStats{Current: p.currentSpeed, Avg: p.avgSpeed, Peak: p.peakSpeed},
	}
}

// RenderSparkline renders recent throughput at width.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sparkline.Render(width)
}

// calculateETA must be called with the lock held.
func (p *ProgressTracker) calculateETA() time.Duration {
	if p.current == 0 || p.total == 0 {
		return 0
	}
	progress := float64(p.current) / float64(p.total)
	if progress >= 1.0 {
		return 0
	}

	elapsed := p.now().Sub(p.stageStart)
	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	p.lastETA = time.Duration(etaSmoothingFactor*float64(remaining) + (1-etaSmoothingFactor)*float64(p.lastETA))
	return p.lastETA
}
