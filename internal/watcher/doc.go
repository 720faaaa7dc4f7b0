// Package watcher rescans tab and bookmark source files when they change.
//
// Browsers rewrite these files by writing a temporary file and renaming it
// over the original, so the watcher follows each file's parent directory
// and filters events by name. fsnotify is used when available and stat
// polling otherwise. Bursts of events are debounced into one batch, and
// each batch rescans the affected sources and then runs analysis.
//
// Usage:
//
//	w := watcher.NewSourceWatcher(svc, sources, watcher.DefaultOptions(), logger)
//	err := w.Run(ctx) // until ctx is cancelled
package watcher
