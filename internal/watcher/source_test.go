package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pagemind/internal/config"
	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/scanner"
)

type fakeRescanner struct {
	mu       sync.Mutex
	scans    []config.WatchSource
	analyzed int
	inserted int
	scanErr  error
}

func (f *fakeRescanner) Scan(_ context.Context, src config.WatchSource) (scanner.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, src)
	if f.scanErr != nil {
		return scanner.Result{}, f.scanErr
	}
	return scanner.Result{Kind: src.Kind, Path: src.Path, Found: f.inserted, Inserted: f.inserted}, nil
}

func (f *fakeRescanner) Analyze(context.Context) (pipeline.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzed++
	return pipeline.RunResult{Status: pipeline.StatusAnalysisComplete}, nil
}

func (f *fakeRescanner) counts() (scans, analyzed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scans), f.analyzed
}

func TestSourceWatcher_HandleBatch_ScansSharedFileSources(t *testing.T) {
	// Given: two folder filters over one Bookmarks file
	path := filepath.Join(t.TempDir(), "Bookmarks")
	fake := &fakeRescanner{inserted: 2}
	w := NewSourceWatcher(fake, []config.WatchSource{
		{Kind: config.SourceChrome, Path: path, Folders: []string{"1"}},
		{Kind: config.SourceChrome, Path: path, Folders: []string{"2"}},
	}, DefaultOptions(), nil)

	// When
	w.handleBatch(context.Background(), []FileEvent{{Path: path, Operation: OpModify}})

	// Then: both are rescanned and analysis runs once
	scans, analyzed := fake.counts()
	assert.Equal(t, 2, scans)
	assert.Equal(t, 1, analyzed)
}

func TestSourceWatcher_HandleBatch_NothingNewSkipsAnalysis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabs.json")
	fake := &fakeRescanner{}
	w := NewSourceWatcher(fake, []config.WatchSource{{Kind: config.SourceTabs, Path: path}}, DefaultOptions(), nil)

	w.handleBatch(context.Background(), []FileEvent{{Path: path, Operation: OpModify}})

	scans, analyzed := fake.counts()
	assert.Equal(t, 1, scans)
	assert.Zero(t, analyzed)
}

func TestSourceWatcher_HandleBatch_DeleteAndErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabs.json")
	fake := &fakeRescanner{scanErr: errors.New("bad json"), inserted: 1}
	w := NewSourceWatcher(fake, []config.WatchSource{{Kind: config.SourceTabs, Path: path}}, DefaultOptions(), nil)

	w.handleBatch(context.Background(), []FileEvent{{Path: path, Operation: OpDelete}})
	scans, _ := fake.counts()
	assert.Zero(t, scans, "deleted files are not scanned")

	w.handleBatch(context.Background(), []FileEvent{{Path: path, Operation: OpModify}})
	scans, analyzed := fake.counts()
	assert.Equal(t, 1, scans)
	assert.Zero(t, analyzed)
}

func TestSourceWatcher_Run_RescansOnChange(t *testing.T) {
	// Given
	path := filepath.Join(t.TempDir(), "tabs.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))
	fake := &fakeRescanner{inserted: 1}
	w := NewSourceWatcher(fake, []config.WatchSource{{Kind: config.SourceTabs, Path: path}},
		Options{DebounceWindow: 30 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// When: the file keeps changing until the watcher has picked it up
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(`[{"url":"https://go.dev"}]`), 0o644)
		_, analyzed := fake.counts()
		return analyzed > 0
	}, 3*time.Second, 100*time.Millisecond)

	// Then
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestSourceWatcher_Run_NoSourcesWaits(t *testing.T) {
	w := NewSourceWatcher(&fakeRescanner{}, nil, DefaultOptions(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, w.Run(ctx), context.DeadlineExceeded)
}
