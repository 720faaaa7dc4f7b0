// Package service is the application layer shared by the CLI, the daemon
// socket, the HTTP API and the MCP server.
package service

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/pagemind/internal/config"
	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/internal/export"
	"github.com/Aman-CERP/pagemind/internal/llm"
	"github.com/Aman-CERP/pagemind/internal/logging"
	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/scanner"
	"github.com/Aman-CERP/pagemind/internal/search"
	"github.com/Aman-CERP/pagemind/internal/store"
	"github.com/Aman-CERP/pagemind/internal/telemetry"
)

// redactedKey is what Redacted settings carry instead of the API key.
const redactedKey = "****"

// MaxJobs bounds the background jobs remembered for polling. Finished jobs
// are forgotten oldest first; running jobs are always kept.
const MaxJobs = 32

// SettingsStore reads and persists the Azure OpenAI settings.
type SettingsStore interface {
	config.SettingsProvider
	Load() (config.Settings, bool, error)
	Save(config.Settings) error
}

// Options wires a Service. Store, Settings, Orchestrator and Asker are
// required.
type Options struct {
	Store        store.RecordStore
	Settings     SettingsStore
	Orchestrator *pipeline.Orchestrator
	Asker        *search.Asker
	Scanner      *scanner.Scanner

	// Sources are scanned when Scan is called without an explicit source.
	Sources []config.WatchSource

	// ExportDir receives export files. Empty uses the working directory.
	ExportDir string

	Metrics *telemetry.Metrics
	Queries *telemetry.QueryStats
	Ring    *logging.Ring
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Service exposes every user-facing operation.
type Service struct {
	store    store.RecordStore
	settings SettingsStore
	orch     *pipeline.Orchestrator
	asker    *search.Asker
	scanner  *scanner.Scanner
	sources  []config.WatchSource

	exportDir string
	metrics   *telemetry.Metrics
	queries   *telemetry.QueryStats
	ring      *logging.Ring
	logger    *slog.Logger
	now       func() time.Time

	bg     sync.WaitGroup
	mu     sync.Mutex
	jobs   map[string]Job
	order  []string
	closed bool
}

// Job is an analysis run started in the background.
type Job struct {
	ID        string              `json:"job_id"`
	StartedAt time.Time           `json:"started_at"`
	Done      bool                `json:"done"`
	Result    *pipeline.RunResult `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// New creates a Service.
func New(opts Options) *Service {
	s := &Service{
		store:     opts.Store,
		settings:  opts.Settings,
		orch:      opts.Orchestrator,
		asker:     opts.Asker,
		scanner:   opts.Scanner,
		sources:   opts.Sources,
		exportDir: opts.ExportDir,
		metrics:   opts.Metrics,
		queries:   opts.Queries,
		ring:      opts.Ring,
		logger:    opts.Logger,
		now:       opts.Clock,
		jobs:      make(map[string]Job),
	}
	if s.scanner == nil {
		s.scanner = scanner.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.queries == nil {
		s.queries = telemetry.NewQueryStats(s.now())
	}
	return s
}

// Sources returns the configured scan sources.
func (s *Service) Sources() []config.WatchSource { return s.sources }

// Scan reads src and inserts unseen URLs. The runtime status moves through
// scanning to scan_complete_pending_analysis.
func (s *Service) Scan(ctx context.Context, src config.WatchSource) (scanner.Result, error) {
	s.orch.SetStatus(pipeline.StatusScanning)
	res, err := s.scanner.Scan(ctx, s.store, src)
	if err != nil {
		s.orch.SetStatus(pipeline.StatusIdle)
		return res, err
	}
	s.orch.SetStatus(pipeline.StatusScanCompletePending)
	return res, nil
}

// ScanAll scans every configured source. A failing source does not stop
// the others; the first error is returned with the partial results.
func (s *Service) ScanAll(ctx context.Context) ([]scanner.Result, error) {
	if len(s.sources) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeSourceInvalid, "no scan sources configured", nil).
			WithSuggestion("Add server.watch entries to the config or pass --tabs / --chrome / --netscape")
	}

	var (
		results  []scanner.Result
		firstErr error
	)
	for _, src := range s.sources {
		res, err := s.Scan(ctx, src)
		if err != nil {
			s.logger.Warn("scan_source_failed",
				slog.String("kind", src.Kind),
				slog.String("path", src.Path),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, res)
	}
	return results, firstErr
}

// Ingest inserts already parsed records, for callers that read a browser
// snapshot themselves.
func (s *Service) Ingest(ctx context.Context, records []*store.Record) (scanner.Result, error) {
	s.orch.SetStatus(pipeline.StatusScanning)
	res, err := scanner.Ingest(ctx, s.store, records)
	if err != nil {
		s.orch.SetStatus(pipeline.StatusIdle)
		return res, err
	}
	s.orch.SetStatus(pipeline.StatusScanCompletePending)
	return res, nil
}

// Analyze runs the analysis loop and waits for it. A caller arriving while
// a run is active shares that run.
func (s *Service) Analyze(ctx context.Context) (pipeline.RunResult, error) {
	res, err := s.orch.EnsureAnalysisLoop(ctx)
	s.refreshStoreMetrics(ctx)
	return res, err
}

// Reanalyze waits for any active run and then runs again, so records added
// during the active run are picked up.
func (s *Service) Reanalyze(ctx context.Context) (pipeline.RunResult, error) {
	res, err := s.orch.RerunAnalysisLoop(ctx)
	s.refreshStoreMetrics(ctx)
	return res, err
}

// StartAnalysis launches the analysis loop in the background and returns a
// job that can be polled with Job.
func (s *Service) StartAnalysis() (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Job{}, apperrors.New(apperrors.ErrCodeInternal, "service is shutting down", nil)
	}

	job := Job{ID: "job_" + uuid.NewString(), StartedAt: s.now()}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	s.pruneJobs()

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		res, err := s.Analyze(context.Background())

		s.mu.Lock()
		defer s.mu.Unlock()
		job.Done = true
		job.Result = &res
		if err != nil {
			job.Error = apperrors.UserMessage(err)
		}
		s.jobs[job.ID] = job
	}()

	s.logger.Info("analysis_job_started", slog.String("job_id", job.ID))
	return job, nil
}

// pruneJobs drops the oldest finished jobs past MaxJobs. s.mu must be held.
func (s *Service) pruneJobs() {
	excess := len(s.jobs) - MaxJobs
	if excess <= 0 {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if excess > 0 && s.jobs[id].Done {
			delete(s.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Job returns a background job by ID.
func (s *Service) Job(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

// Ask answers question from the knowledge base.
func (s *Service) Ask(ctx context.Context, question string) (*llm.AnswerResult, error) {
	start := s.now()
	res, err := s.asker.Ask(ctx, question)

	count := 0
	if res != nil {
		count = len(res.MatchedURLs)
	}
	s.observeQuery(telemetry.QueryAsk, question, count, start, err)
	return res, err
}

// Search returns the ranked records for query without calling the answer
// model.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	start := s.now()
	matches, err := s.asker.Search(ctx, query, topK)
	s.observeQuery(telemetry.QuerySearch, query, len(matches), start, err)
	if err != nil {
		return nil, err
	}
	return Hits(matches), nil
}

func (s *Service) observeQuery(kind telemetry.QueryKind, query string, count int, start time.Time, err error) {
	elapsed := s.now().Sub(start)
	outcome := "ok"
	switch {
	case errors.Is(err, search.ErrNoMatches):
		outcome = "no_match"
	case err != nil:
		outcome = "error"
	case count == 0:
		outcome = "no_match"
	}

	s.queries.Record(telemetry.QueryEvent{
		Kind:        kind,
		Query:       query,
		ResultCount: count,
		Failed:      err != nil && !errors.Is(err, search.ErrNoMatches),
		Latency:     elapsed,
		Timestamp:   start,
	})
	if s.metrics != nil {
		s.metrics.ObserveQuery(string(kind), outcome, elapsed)
	}
}

// QueryStats returns the in-process query summary.
func (s *Service) QueryStats() telemetry.QuerySnapshot {
	return s.queries.Snapshot()
}

// Stats counts stored records by status.
func (s *Service) Stats(ctx context.Context) (store.Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return st, err
	}
	if s.metrics != nil {
		s.metrics.SetStoreStats(st)
	}
	return st, nil
}

func (s *Service) refreshStoreMetrics(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if _, err := s.Stats(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("store_stats_failed", slog.String("error", err.Error()))
	}
}

// Settings returns the effective settings with the API key redacted.
func (s *Service) Settings(ctx context.Context) (config.Settings, error) {
	cur, err := s.settings.Settings(ctx)
	if err != nil {
		return config.Settings{}, err
	}
	return cur.Redacted(), nil
}

// SaveSettings persists next. A redacted API key keeps the saved key, so
// settings read from Settings can be edited and written back.
func (s *Service) SaveSettings(_ context.Context, next config.Settings) error {
	if next.APIKey == redactedKey {
		saved, _, err := s.settings.Load()
		if err != nil {
			return err
		}
		next.APIKey = saved.APIKey
	}
	if next.MaxCharsPerPage < 0 || next.MaxConcurrency < 0 {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "limits must not be negative", nil)
	}
	if err := s.settings.Save(next); err != nil {
		return apperrors.ConfigError("failed to save settings", err)
	}

	s.logger.Info("settings_saved", slog.Any("missing", next.Missing()))
	return nil
}

// Export writes the knowledge base to the export directory.
func (s *Service) Export(ctx context.Context, format export.Format) (export.Result, error) {
	rows, err := s.store.ListKnowledgeRows(ctx)
	if err != nil {
		return export.Result{}, err
	}
	dir := s.exportDir
	if dir == "" {
		dir = "."
	}
	res, err := export.ToDir(filepath.Clean(dir), format, rows, s.now())
	if err != nil {
		return res, err
	}
	s.logger.Info("export_written",
		slog.String("format", string(format)),
		slog.String("path", res.Path),
		slog.Int("rows", res.Rows))
	return res, nil
}

// Logs returns the retained debug entries, oldest first.
func (s *Service) Logs() []logging.Entry {
	if s.ring == nil {
		return []logging.Entry{}
	}
	return s.ring.Entries()
}

// ClearLogs empties the debug ring.
func (s *Service) ClearLogs() {
	if s.ring != nil {
		s.ring.Clear()
	}
}

// Requeue moves failed and restricted records back to pending.
func (s *Service) Requeue(ctx context.Context, restricted bool) (int, error) {
	from := []store.Status{store.StatusFailed}
	if restricted {
		from = append(from, store.StatusRestricted)
	}
	n, err := s.store.ResetStatus(ctx, from...)
	if err != nil {
		return 0, err
	}
	s.logger.Info("records_requeued", slog.Int("count", n))
	return n, nil
}

// Reset deletes every record and analysis.
func (s *Service) Reset(ctx context.Context) error {
	if s.orch.Guard().Running() {
		return apperrors.New(apperrors.ErrCodeRunBusy, "an analysis run is active", nil).
			WithSuggestion("Wait for the run to finish and retry")
	}
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	s.orch.SetStatus(pipeline.StatusIdle)
	s.logger.Info("store_reset")
	return nil
}

// Close waits for background jobs. It does not close the store.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.bg.Wait()
}
