package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// poller detects changes to a set of files by comparing stat results on
// every tick. It is the fallback for mounts where fsnotify does not work.
type poller struct {
	paths    []string
	interval time.Duration
	state    map[string]fileSnapshot
	emit     func(FileEvent)
	onError  func(error)
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	exists  bool
}

func newPoller(paths []string, interval time.Duration, emit func(FileEvent), onError func(error)) *poller {
	return &poller{
		paths:    paths,
		interval: interval,
		state:    make(map[string]fileSnapshot, len(paths)),
		emit:     emit,
		onError:  onError,
	}
}

func (p *poller) run(ctx context.Context) error {
	// Baseline, so files present at start do not fire.
	for _, path := range p.paths {
		snap, err := stat(path)
		if err != nil {
			p.onError(err)
		}
		p.state[path] = snap
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.detectChanges()
		}
	}
}

func (p *poller) detectChanges() {
	for _, path := range p.paths {
		cur, err := stat(path)
		if err != nil {
			p.onError(err)
			continue
		}
		prev := p.state[path]
		p.state[path] = cur

		var op Operation
		switch {
		case !prev.exists && cur.exists:
			op = OpCreate
		case prev.exists && !cur.exists:
			op = OpDelete
		case cur.exists && (cur.modTime != prev.modTime || cur.size != prev.size):
			op = OpModify
		default:
			continue
		}
		p.emit(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
	}
}

func stat(path string) (fileSnapshot, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileSnapshot{}, nil
	}
	if err != nil {
		return fileSnapshot{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return fileSnapshot{modTime: info.ModTime(), size: info.Size(), exists: true}, nil
}
