package ui

import (
	"sync"

	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/store"
)

// Reporter adapts pipeline events to a Renderer.
type Reporter struct {
	r Renderer

	mu      sync.Mutex
	total   int
	current int
}

var _ pipeline.ProgressObserver = (*Reporter)(nil)

// NewReporter creates a Reporter that drives r.
func NewReporter(r Renderer) *Reporter {
	return &Reporter{r: r}
}

// RunStarted implements pipeline.ProgressObserver.
func (p *Reporter) RunStarted(total, workers int) {
	p.mu.Lock()
	p.total, p.current = total, 0
	p.mu.Unlock()

	p.r.UpdateProgress(ProgressEvent{Stage: StageAnalyzing, Total: total})
}

// RecordStarted implements pipeline.ProgressObserver.
func (p *Reporter) RecordStarted(rec *store.Record) {
	p.mu.Lock()
	ev := ProgressEvent{Stage: StageAnalyzing, Current: p.current, Total: p.total, URL: rec.URL, Active: true}
	p.mu.Unlock()

	p.r.UpdateProgress(ev)
}

// RecordFinished implements pipeline.ProgressObserver.
func (p *Reporter) RecordFinished(o pipeline.Outcome) {
	p.mu.Lock()
	p.current++
	ev := ProgressEvent{Stage: StageAnalyzing, Current: p.current, Total: p.total, URL: o.URL}
	p.mu.Unlock()

	p.r.UpdateProgress(ev)
	switch o.Status {
	case store.StatusDone:
	case store.StatusRestricted:
		p.r.AddError(ErrorEvent{URL: o.URL, Err: o.Error, IsWarn: true})
	default:
		p.r.AddError(ErrorEvent{URL: o.URL, Err: o.Error})
	}
}

// RunFinished implements pipeline.ProgressObserver.
func (p *Reporter) RunFinished(res pipeline.RunResult) {
	p.r.Complete(CompletionStats{
		Processed:  res.Processed,
		Done:       res.Done,
		Failed:     res.Failed,
		Restricted: res.Restricted,
		Workers:    res.Workers,
		Duration:   res.Duration(),
		Status:     string(res.Status),
	})
}
