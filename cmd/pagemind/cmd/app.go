package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/pagemind/internal/config"
	"github.com/Aman-CERP/pagemind/internal/daemon"
	"github.com/Aman-CERP/pagemind/internal/embed"
	"github.com/Aman-CERP/pagemind/internal/fetch"
	"github.com/Aman-CERP/pagemind/internal/llm"
	"github.com/Aman-CERP/pagemind/internal/logging"
	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/scanner"
	"github.com/Aman-CERP/pagemind/internal/search"
	"github.com/Aman-CERP/pagemind/internal/service"
	"github.com/Aman-CERP/pagemind/internal/store"
	"github.com/Aman-CERP/pagemind/internal/telemetry"
)

// appOptions tunes how an app is assembled for one command.
type appOptions struct {
	// logToStderr mirrors logs to stderr. --debug turns it on as well.
	logToStderr bool
	// observers receive analysis progress beside the metrics observer.
	observers []pipeline.ProgressObserver
	// exportDir overrides <data_dir>/exports.
	exportDir string
}

// app is a fully wired service with the resources it owns.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.SQLiteStore
	settings *config.SettingsFile
	metrics  *telemetry.Metrics
	embedder *embed.CachedEmbedder
	svc      *service.Service
	cleanup  func()
}

// loadConfig reads the layered configuration for the --config flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupLogging routes slog to the rotating log file and the ring.
func setupLogging(cfg *config.Config, ring *logging.Ring, toStderr bool) (*slog.Logger, func(), error) {
	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.LogPath(),
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: toStderr,
		Ring:          ring,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

// newApp opens the store and wires every component behind the service.
func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	ring := logging.NewRing(cfg.Logging.RingSize)
	logger, logCleanup, err := setupLogging(cfg, ring, opts.logToStderr || debugMode)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.Driver, cfg.DatabasePath())
	if err != nil {
		logCleanup()
		return nil, err
	}

	cache, err := embed.NewCache(cfg.Cache)
	if err != nil {
		_ = st.Close()
		logCleanup()
		return nil, err
	}

	metrics := telemetry.NewMetrics()
	settings := config.NewSettingsFile(cfg.SettingsPath(), cfg.Azure)
	client := llm.NewAzureClient(llm.WithLogger(logger))

	embedder := embed.NewCachedEmbedder(client, cache, logger)
	embedder.OnLookup(metrics.ObserveCache)

	observers := pipeline.Observers{metrics.RunObserver()}
	observers = append(observers, opts.observers...)

	var lock *pipeline.RunLock
	if cfg.Pipeline.CrossProcessLock {
		lock = pipeline.NewRunLock(cfg.LockPath())
	}

	orch := pipeline.New(pipeline.Options{
		Store:      st,
		Settings:   settings,
		Summarizer: client,
		Embedder:   embedder,
		Fetcher: fetch.New(fetch.Options{
			UserAgent:         cfg.Pipeline.UserAgent,
			MaxBodyBytes:      cfg.Pipeline.MaxBodyBytes,
			RequestsPerSecond: cfg.Pipeline.RequestsPerSecond,
			Burst:             cfg.Pipeline.Burst,
		}),
		FetchTimeout: cfg.FetchTimeout(),
		LinkLimit:    cfg.Pipeline.LinkLimit,
		Lock:         lock,
		Observer:     observers,
		Logger:       logger,
	})

	exportDir := opts.exportDir
	if exportDir == "" {
		exportDir = filepath.Join(cfg.DataDir, "exports")
	}

	svc := service.New(service.Options{
		Store:        st,
		Settings:     settings,
		Orchestrator: orch,
		Asker:        search.NewAsker(st, settings, embedder, client, search.WithAskLogger(logger)),
		Scanner:      scanner.New(scanner.WithLogger(logger)),
		Sources:      cfg.Server.Watch,
		ExportDir:    exportDir,
		Metrics:      metrics,
		Ring:         ring,
		Logger:       logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		settings: settings,
		metrics:  metrics,
		embedder: embedder,
		svc:      svc,
		cleanup:  logCleanup,
	}, nil
}

// Close waits for background jobs and releases the store, the cache and
// the log file.
func (a *app) Close() {
	a.svc.Close()
	if err := a.embedder.Close(); err != nil {
		a.logger.Warn("embedding_cache_close_failed", slog.String("error", err.Error()))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store_close_failed", slog.String("error", err.Error()))
	}
	a.cleanup()
}

// session is how a command reaches the service: the daemon socket when a
// daemon runs, otherwise an in-process app.
type session struct {
	daemon.Caller
	cfg    *config.Config
	remote bool
	app    *app
}

// connect opens a session for one command.
func connect(opts appOptions) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client := daemon.NewClient(daemon.ConfigFrom(cfg))
	if client.IsRunning() {
		return &session{Caller: client, cfg: cfg, remote: true}, nil
	}

	a, err := newApp(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &session{Caller: daemon.NewInProcess(a.svc, a.logger), cfg: cfg, app: a}, nil
}

// Close releases the in-process app, if any.
func (s *session) Close() {
	if s.app != nil {
		s.app.Close()
	}
}

// call is Call without a reply type.
func (s *session) call(ctx context.Context, method daemon.Method, params, out any) error {
	_, err := s.Caller.Call(ctx, method, params, out)
	return err
}

// mode names where the command ran, for status lines.
func (s *session) mode() string {
	if s.remote {
		return "daemon"
	}
	return "local"
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
