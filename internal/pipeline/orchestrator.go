// Package pipeline drives pending records through fetch, extraction,
// summarization and embedding with a bounded worker pool.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/pagemind/internal/config"
	"github.com/Aman-CERP/pagemind/internal/fetch"
	"github.com/Aman-CERP/pagemind/internal/llm"
	"github.com/Aman-CERP/pagemind/internal/store"
)

// RunResult summarizes one analysis run.
type RunResult struct {
	Status     RuntimeStatus `json:"status"`
	Processed  int           `json:"processed"`
	Done       int           `json:"done"`
	Failed     int           `json:"failed"`
	Restricted int           `json:"restricted"`
	Workers    int           `json:"workers"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Duration returns how long the run took.
func (r RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Options wires an Orchestrator.
type Options struct {
	Store      store.RecordStore
	Settings   config.SettingsProvider
	Fetcher    fetch.PageFetcher
	Summarizer llm.Summarizer
	Embedder   llm.Embedder

	// FetchTimeout bounds each page fetch. Zero uses fetch.DefaultTimeout.
	FetchTimeout time.Duration

	// LinkLimit caps stored outbound links. Zero uses store.MaxLinks.
	LinkLimit int

	// Lock, when set, excludes runs in other processes.
	Lock *RunLock

	Observer ProgressObserver
	Logger   *slog.Logger
	Clock    func() time.Time
	NewID    func() string
}

// Orchestrator owns the run guard and the status shared with every surface.
type Orchestrator struct {
	store      store.RecordStore
	settings   config.SettingsProvider
	fetcher    fetch.PageFetcher
	summarizer llm.Summarizer
	embedder   llm.Embedder

	fetchTimeout time.Duration
	linkLimit    int
	lock         *RunLock
	observer     ProgressObserver
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string

	guard    *RunGuard
	progress *Progress
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:        opts.Store,
		settings:     opts.Settings,
		fetcher:      opts.Fetcher,
		summarizer:   opts.Summarizer,
		embedder:     opts.Embedder,
		fetchTimeout: opts.FetchTimeout,
		linkLimit:    opts.LinkLimit,
		lock:         opts.Lock,
		observer:     opts.Observer,
		logger:       opts.Logger,
		now:          opts.Clock,
		newID:        opts.NewID,
	}
	if o.fetchTimeout <= 0 {
		o.fetchTimeout = fetch.DefaultTimeout
	}
	if o.linkLimit <= 0 || o.linkLimit > store.MaxLinks {
		o.linkLimit = store.MaxLinks
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = func() string { return "an_" + uuid.NewString() }
	}
	o.guard = NewRunGuard(o.now)
	o.progress = NewProgress(o.now)
	return o
}

// EnsureAnalysisLoop starts an analysis run, or joins the one in flight.
// Record failures never surface here; the error is reserved for failures
// reading settings or the pending snapshot.
func (o *Orchestrator) EnsureAnalysisLoop(ctx context.Context) (RunResult, error) {
	res, shared, err := o.guard.Do(ctx, o.run)
	if shared {
		o.logger.Debug("analysis_run_joined", slog.String("status", string(res.Status)))
	}
	return res, err
}

// RerunAnalysisLoop waits for an active run, then starts a new one so
// records added during that run are picked up.
func (o *Orchestrator) RerunAnalysisLoop(ctx context.Context) (RunResult, error) {
	return o.guard.Rerun(ctx, o.run)
}

// Guard exposes the run guard.
func (o *Orchestrator) Guard() *RunGuard { return o.guard }

// Status returns the current aggregate status.
func (o *Orchestrator) Status() RuntimeStatus { return o.progress.Status() }

// SetStatus records a status driven from outside a run, such as scanning.
// It is ignored while a run is active.
func (o *Orchestrator) SetStatus(s RuntimeStatus) {
	if o.guard.Running() {
		return
	}
	o.progress.SetStatus(s)
}

// Progress returns a snapshot of the latest run.
func (o *Orchestrator) Progress() ProgressSnapshot { return o.progress.Snapshot() }

func (o *Orchestrator) run(ctx context.Context) (RunResult, error) {
	result := RunResult{StartedAt: o.now()}
	finish := func(status RuntimeStatus) RunResult {
		result.Status = status
		result.FinishedAt = o.now()
		o.progress.SetStatus(status)
		o.observer.RunFinished(result)
		return result
	}

	s, err := o.settings.Settings(ctx)
	if err != nil {
		return finish(StatusIdle), err
	}
	if missing := s.Missing(); len(missing) > 0 {
		o.logger.Warn("analysis_waiting_for_configuration", slog.Any("missing", missing))
		return finish(StatusWaitingForConfiguration), nil
	}

	if o.lock != nil {
		ok, err := o.lock.TryLock()
		if err != nil {
			return finish(StatusIdle), err
		}
		if !ok {
			o.logger.Info("analysis_lock_busy", slog.String("lock", o.lock.Path()))
			return finish(StatusBusy), nil
		}
		defer func() {
			if err := o.lock.Unlock(); err != nil {
				o.logger.Warn("analysis_lock_release_failed", slog.String("error", err.Error()))
			}
		}()
	}

	pending, err := o.store.ListPending(ctx)
	if err != nil {
		return finish(StatusIdle), err
	}
	if len(pending) == 0 {
		return finish(StatusIdle), nil
	}

	workers := min(s.EffectiveConcurrency(), len(pending))
	result.Workers = workers

	o.progress.Start(len(pending), workers)
	o.observer.RunStarted(len(pending), workers)
	o.logger.Info("analysis_run_started",
		slog.Int("pending", len(pending)),
		slog.Int("workers", workers))

	var done, failed, restricted atomic.Int64
	o.runWorkers(ctx, s, pending, workers, func(out Outcome) {
		switch out.Status {
		case store.StatusDone:
			done.Add(1)
		case store.StatusRestricted:
			restricted.Add(1)
		default:
			failed.Add(1)
		}
		o.progress.Record(out)
		o.observer.RecordFinished(out)
	})

	result.Done = int(done.Load())
	result.Failed = int(failed.Load())
	result.Restricted = int(restricted.Load())
	result.Processed = result.Done + result.Failed + result.Restricted

	o.progress.Finish()
	result = finish(StatusAnalysisComplete)
	o.logger.Info("analysis_run_finished",
		slog.Int("processed", result.Processed),
		slog.Int("done", result.Done),
		slog.Int("failed", result.Failed),
		slog.Int("restricted", result.Restricted),
		slog.Duration("duration", result.Duration()))

	return result, nil
}

// runWorkers drains the snapshot with the given number of workers. Each
// worker claims the next index from a shared cursor and finishes that record
// before claiming another.
func (o *Orchestrator) runWorkers(ctx context.Context, s config.Settings, pending []*store.Record, workers int, report func(Outcome)) {
	var cursor atomic.Int64
	n := int64(len(pending))

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for {
				i := cursor.Add(1) - 1
				if i >= n {
					return nil
				}
				report(o.processRecord(ctx, s, pending[i]))
			}
		})
	}
	_ = g.Wait()
}
