package watcher

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/pagemind/internal/config"
	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/scanner"
)

// Rescanner is the part of the application service the watcher drives.
type Rescanner interface {
	Scan(ctx context.Context, src config.WatchSource) (scanner.Result, error)
	Analyze(ctx context.Context) (pipeline.RunResult, error)
}

// SourceWatcher rescans configured sources when their files change and
// then runs analysis for the new records.
type SourceWatcher struct {
	svc     Rescanner
	sources map[string][]config.WatchSource
	opts    Options
	logger  *slog.Logger
}

// NewSourceWatcher creates a watcher for sources. Several sources may share
// one file, such as two folder filters on the same Bookmarks file.
func NewSourceWatcher(svc Rescanner, sources []config.WatchSource, opts Options, logger *slog.Logger) *SourceWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	byPath := make(map[string][]config.WatchSource, len(sources))
	for _, src := range sources {
		abs, err := filepath.Abs(src.Path)
		if err != nil {
			abs = src.Path
		}
		abs = filepath.Clean(abs)
		byPath[abs] = append(byPath[abs], src)
	}
	return &SourceWatcher{
		svc:     svc,
		sources: byPath,
		opts:    opts,
		logger:  logger.With(slog.String("component", "watcher")),
	}
}

// Run watches until ctx is cancelled. With no sources it waits for ctx.
func (w *SourceWatcher) Run(ctx context.Context) error {
	if len(w.sources) == 0 {
		w.logger.Info("watcher_idle_no_sources")
		<-ctx.Done()
		return ctx.Err()
	}

	paths := make([]string, 0, len(w.sources))
	for p := range w.sources {
		paths = append(paths, p)
	}
	fw, err := NewFileWatcher(paths, w.opts, w.logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- fw.Start(ctx) }()
	w.logger.Info("watcher_started", slog.Int("files", len(paths)))

	for {
		select {
		case batch, ok := <-fw.Events():
			if !ok {
				return <-errCh
			}
			w.handleBatch(ctx, batch)
		case err := <-fw.Errors():
			w.logger.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

// handleBatch rescans every source touched by batch, then analyzes once.
// Deleted files are skipped until they reappear.
func (w *SourceWatcher) handleBatch(ctx context.Context, batch []FileEvent) {
	inserted := 0
	for _, ev := range batch {
		if ev.Operation == OpDelete {
			w.logger.Info("source_removed", slog.String("path", ev.Path))
			continue
		}
		for _, src := range w.sources[ev.Path] {
			res, err := w.svc.Scan(ctx, src)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					w.logger.Warn("rescan_failed",
						slog.String("path", ev.Path),
						slog.String("kind", src.Kind),
						slog.String("error", err.Error()))
				}
				continue
			}
			inserted += res.Inserted
			w.logger.Info("source_rescanned",
				slog.String("path", ev.Path),
				slog.String("op", ev.Operation.String()),
				slog.Int("found", res.Found),
				slog.Int("inserted", res.Inserted))
		}
	}
	if inserted == 0 || ctx.Err() != nil {
		return
	}

	res, err := w.svc.Analyze(ctx)
	if err != nil {
		w.logger.Warn("watch_analysis_failed", slog.String("error", err.Error()))
		return
	}
	w.logger.Info("watch_analysis_finished",
		slog.String("status", string(res.Status)),
		slog.Int("processed", res.Processed))
}

