package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event, for CI and pipes.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// UpdateProgress implements Renderer. Record starts are skipped so each
// record prints once, when it finishes.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	if event.Active {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.URL
	}

	switch {
	case event.Total > 0 && event.Current == 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d pending\n", event.Stage.Icon(), event.Total)
	case event.Total > 0 && event.Current > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	case event.Total == 0 && msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)
	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.URL != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %s\n", prefix, event.URL, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %s\n", prefix, event.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d processed (%d done, %d failed, %d restricted) in %s",
		stats.Processed, stats.Done, stats.Failed, stats.Restricted, stats.Duration.Round(100*time.Millisecond))
	if stats.Workers > 0 {
		_, _ = fmt.Fprintf(r.out, " with %d workers", stats.Workers)
	}
	_, _ = fmt.Fprintln(r.out)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

var _ Renderer = (*PlainRenderer)(nil)
