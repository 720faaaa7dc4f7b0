package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher emits debounced batches of changes to a fixed set of files.
type FileWatcher struct {
	files     map[string]bool
	opts      Options
	logger    *slog.Logger
	debouncer *Debouncer
	errors    chan error

	mu      sync.Mutex
	kind    string
	started bool
}

// NewFileWatcher watches paths. Relative paths are resolved against the
// working directory.
func NewFileWatcher(paths []string, opts Options, logger *slog.Logger) (*FileWatcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.WithDefaults()

	files := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve absolute path: %w", err)
		}
		files[filepath.Clean(abs)] = true
	}
	return &FileWatcher{
		files:     files,
		opts:      opts,
		logger:    logger,
		debouncer: NewDebouncer(opts.DebounceWindow, logger),
		errors:    make(chan error, 8),
	}, nil
}

// Events returns debounced batches. The channel closes when Start returns.
func (w *FileWatcher) Events() <-chan []FileEvent { return w.debouncer.Output() }

// Errors returns non-fatal watch errors.
func (w *FileWatcher) Errors() <-chan error { return w.errors }

// Kind reports "fsnotify" or "polling" once started.
func (w *FileWatcher) Kind() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.kind
}

// Start watches until ctx is cancelled. It falls back to polling when
// fsnotify cannot be initialized.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	w.started = true
	w.mu.Unlock()
	defer w.debouncer.Stop()

	if !w.opts.ForcePolling {
		fsw, err := w.newFsnotify()
		if err == nil {
			w.setKind("fsnotify")
			return w.runFsnotify(ctx, fsw)
		}
		w.logger.Warn("fsnotify_unavailable_polling", slog.String("error", err.Error()))
	}

	w.setKind("polling")
	return newPoller(w.paths(), w.opts.PollInterval, w.debouncer.Add, w.emitError).run(ctx)
}

func (w *FileWatcher) setKind(kind string) {
	w.mu.Lock()
	w.kind = kind
	w.mu.Unlock()
}

func (w *FileWatcher) paths() []string {
	out := make([]string, 0, len(w.files))
	for p := range w.files {
		out = append(out, p)
	}
	return out
}

func (w *FileWatcher) newFsnotify() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dirs := make(map[string]bool)
	for p := range w.files {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return fsw, nil
}

func (w *FileWatcher) runFsnotify(ctx context.Context, fsw *fsnotify.Watcher) error {
	defer fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handle keeps events for watched files and drops chmod noise.
func (w *FileWatcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.files[path] {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}
	w.debouncer.Add(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
}

func (w *FileWatcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}
