package pipeline

import (
	"sync"
	"time"

	"github.com/Aman-CERP/pagemind/internal/store"
)

// RuntimeStatus is the coarse aggregate state reported to every surface.
type RuntimeStatus string

const (
	StatusIdle                    RuntimeStatus = "idle"
	StatusScanning                RuntimeStatus = "scanning"
	StatusScanCompletePending     RuntimeStatus = "scan_complete_pending_analysis"
	StatusAnalyzing               RuntimeStatus = "analyzing"
	StatusWaitingForConfiguration RuntimeStatus = "waiting_for_configuration"
	StatusBusy                    RuntimeStatus = "busy"
	StatusAnalysisComplete        RuntimeStatus = "analysis_complete"
)

// ProgressSnapshot is an immutable copy of run progress.
type ProgressSnapshot struct {
	Status         string  `json:"status"`
	Total          int     `json:"total"`
	Processed      int     `json:"processed"`
	Done           int     `json:"done"`
	Failed         int     `json:"failed"`
	Restricted     int     `json:"restricted"`
	Workers        int     `json:"workers"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	LastError      string  `json:"last_error,omitempty"`
}

// Progress tracks the current status and the counters of the latest run.
// It is safe for concurrent use.
type Progress struct {
	mu  sync.RWMutex
	now func() time.Time

	status     RuntimeStatus
	total      int
	processed  int
	done       int
	failed     int
	restricted int
	workers    int
	startTime  time.Time
	endTime    time.Time
	lastError  string
}

// NewProgress creates a tracker in the idle state.
func NewProgress(now func() time.Time) *Progress {
	if now == nil {
		now = time.Now
	}
	return &Progress{status: StatusIdle, now: now}
}

// SetStatus replaces the aggregate status.
func (p *Progress) SetStatus(s RuntimeStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
}

// Status returns the aggregate status.
func (p *Progress) Status() RuntimeStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Start resets the counters for a run over total records.
func (p *Progress) Start(total, workers int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusAnalyzing
	p.total = total
	p.workers = workers
	p.processed, p.done, p.failed, p.restricted = 0, 0, 0, 0
	p.lastError = ""
	p.startTime = p.now()
	p.endTime = time.Time{}
}

// Record counts one finished record.
func (p *Progress) Record(o Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processed++
	switch o.Status {
	case store.StatusDone:
		p.done++
	case store.StatusRestricted:
		p.restricted++
		p.lastError = o.Error
	default:
		p.failed++
		p.lastError = o.Error
	}
}

// Finish marks the run complete.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusAnalysisComplete
	p.endTime = p.now()
}

// Snapshot returns a copy of the current progress.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.total > 0 {
		pct = float64(p.processed) / float64(p.total) * 100.0
	}

	var elapsed time.Duration
	switch {
	case p.startTime.IsZero():
	case p.endTime.IsZero():
		elapsed = p.now().Sub(p.startTime)
	default:
		elapsed = p.endTime.Sub(p.startTime)
	}

	return ProgressSnapshot{
		Status:         string(p.status),
		Total:          p.total,
		Processed:      p.processed,
		Done:           p.done,
		Failed:         p.failed,
		Restricted:     p.restricted,
		Workers:        p.workers,
		ProgressPct:    pct,
		ElapsedSeconds: int(elapsed.Seconds()),
		LastError:      p.lastError,
	}
}
