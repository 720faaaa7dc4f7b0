package pipeline

import (
	"time"

	"github.com/Aman-CERP/pagemind/internal/store"
)

// Outcome is the terminal result of processing one record.
type Outcome struct {
	RecordID string
	URL      string
	Status   store.Status
	Error    string
	Duration time.Duration
}

// ProgressObserver receives run events. Record events arrive from worker
// goroutines, so implementations must be safe for concurrent use.
type ProgressObserver interface {
	RunStarted(total, workers int)
	RecordStarted(r *store.Record)
	RecordFinished(o Outcome)
	RunFinished(res RunResult)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) RunStarted(int, int)          {}
func (NopObserver) RecordStarted(*store.Record) {}
func (NopObserver) RecordFinished(Outcome)      {}
func (NopObserver) RunFinished(RunResult)       {}

// Observers fans events out to several observers in order.
type Observers []ProgressObserver

func (obs Observers) RunStarted(total, workers int) {
	for _, o := range obs {
		o.RunStarted(total, workers)
	}
}

func (obs Observers) RecordStarted(r *store.Record) {
	for _, o := range obs {
		o.RecordStarted(r)
	}
}

func (obs Observers) RecordFinished(out Outcome) {
	for _, o := range obs {
		o.RecordFinished(out)
	}
}

func (obs Observers) RunFinished(res RunResult) {
	for _, o := range obs {
		o.RunFinished(res)
	}
}
