package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pagemind/internal/daemon"
	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/service/servicetest"
)

func startDaemon(t *testing.T, f *servicetest.Fixture) *daemon.Client {
	t.Helper()
	sock := filepath.Join(os.TempDir(), fmt.Sprintf("pagemind-it-%d.sock", time.Now().UnixNano()))
	cfg := daemon.Config{
		SocketPath:          sock,
		PIDPath:             filepath.Join(f.Dir, "daemon.pid"),
		Timeout:             5 * time.Second,
		ShutdownGracePeriod: 2 * time.Second,
	}
	d, err := daemon.New(cfg, f.Service, f.Logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
		_ = os.Remove(sock)
	})

	client := daemon.NewClient(cfg)
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)
	return client
}

func TestDaemon_ScanAnalyzeAskExport(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a daemon over a configured service
	f := servicetest.New(t)
	client := startDaemon(t, f)
	ctx := context.Background()
	src := f.TabsFile(t, "https://golang.example/guide", "https://sqlite.example/docs", "chrome://settings")

	// When: a tab snapshot is scanned without analysis
	scan, err := client.Scan(ctx, daemon.ScanParams{Kind: src.Kind, Path: src.Path, NoAnalyze: true})

	// Then: only http(s) tabs are inserted and no job starts
	require.NoError(t, err)
	require.Len(t, scan.Scans, 1)
	assert.Equal(t, 2, scan.Scans[0].Inserted)
	assert.Empty(t, scan.JobID)

	// When: analysis runs to completion
	res, err := client.Analyze(ctx, false)

	// Then
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusAnalysisComplete, res.Status)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Done)

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Done)
	assert.Equal(t, 2, stats.Analyses)

	// When: a question is asked
	answer, err := client.Ask(ctx, "what did I save about golang?")

	// Then: the answer cites the golang page
	require.NoError(t, err)
	require.NotEmpty(t, answer.MatchedURLs)
	assert.Equal(t, "https://golang.example/guide", answer.MatchedURLs[0].URL)

	hits, err := client.Search(ctx, "sqlite", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "https://sqlite.example/docs", hits[0].URL)

	// When: the knowledge base is exported as JSONL
	var exp daemon.ExportReply
	_, err = client.Call(ctx, daemon.MethodExportJSONL, nil, &exp)

	// Then: one line per analyzed page
	require.NoError(t, err)
	assert.Equal(t, 2, exp.Rows)
	data, err := os.ReadFile(exp.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	var row map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &row))
	rec, ok := row["record"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, []any{"https://golang.example/guide", "https://sqlite.example/docs"}, rec["url"])
	assert.Contains(t, rec, "bookmark_id")
}

func TestDaemon_RescanIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a source already scanned once
	f := servicetest.New(t)
	client := startDaemon(t, f)
	ctx := context.Background()
	src := f.TabsFile(t, "https://golang.example/a", "https://golang.example/b")
	_, err := client.Scan(ctx, daemon.ScanParams{Kind: src.Kind, Path: src.Path, NoAnalyze: true})
	require.NoError(t, err)

	// When: it is scanned again
	again, err := client.Scan(ctx, daemon.ScanParams{Kind: src.Kind, Path: src.Path, NoAnalyze: true})

	// Then: nothing new, everything known
	require.NoError(t, err)
	require.Len(t, again.Scans, 1)
	assert.Equal(t, 0, again.Scans[0].Inserted)
	assert.Equal(t, 2, again.Scans[0].Existing)
}

func TestDaemon_UnconfiguredRunWaits(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: pending records and empty settings
	f := servicetest.New(t, servicetest.Unconfigured())
	client := startDaemon(t, f)
	ctx := context.Background()
	src := f.TabsFile(t, "https://golang.example/a")
	_, err := client.Scan(ctx, daemon.ScanParams{Kind: src.Kind, Path: src.Path, NoAnalyze: true})
	require.NoError(t, err)

	// When
	res, err := client.Analyze(ctx, false)

	// Then: the record stays pending
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusWaitingForConfiguration, res.Status)
	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
}
