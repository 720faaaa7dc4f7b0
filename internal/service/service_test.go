package service_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pagemind/internal/config"
	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/internal/export"
	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/search"
	"github.com/Aman-CERP/pagemind/internal/service"
	"github.com/Aman-CERP/pagemind/internal/service/servicetest"
	"github.com/Aman-CERP/pagemind/internal/store"
)

func TestScan_MovesStatusToPendingAnalysis(t *testing.T) {
	// Given
	f := servicetest.New(t)
	src := f.TabsFile(t, "https://golang.org/doc", "https://sqlite.org/wal")

	// When
	res, err := f.Service.Scan(context.Background(), src)

	// Then
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, pipeline.StatusScanCompletePending, mustStatus(t, f).Status)
}

func TestScan_FailureReturnsToIdle(t *testing.T) {
	f := servicetest.New(t)

	_, err := f.Service.Scan(context.Background(), config.WatchSource{Kind: config.SourceTabs, Path: "/does/not/exist.json"})

	require.Error(t, err)
	assert.Equal(t, pipeline.StatusIdle, mustStatus(t, f).Status)
}

func TestScanAll_RequiresSources(t *testing.T) {
	f := servicetest.New(t)

	_, err := f.Service.ScanAll(context.Background())

	assert.Equal(t, apperrors.ErrCodeSourceInvalid, apperrors.GetCode(err))
}

func TestScanAll_ContinuesPastBrokenSource(t *testing.T) {
	// Given: one readable and one missing source
	probe := servicetest.New(t)
	good := probe.TabsFile(t, "https://golang.org/doc")
	f := servicetest.New(t, servicetest.WithSources(
		config.WatchSource{Kind: config.SourceTabs, Path: "/missing.json"},
		good,
	))

	// When
	results, err := f.Service.ScanAll(context.Background())

	// Then: the good source is stored and the error is reported
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Inserted)
}

func TestAnalyze_ThenAskCitesBestMatch(t *testing.T) {
	// Given
	f := servicetest.New(t)
	f.Seed(t, "https://golang.org/doc", "https://sqlite.org/wal", "https://redis.io/docs")

	// When
	res, err := f.Service.Ask(context.Background(), "how does sqlite wal work?")

	// Then
	require.NoError(t, err)
	require.NotEmpty(t, res.MatchedURLs)
	assert.Equal(t, "https://sqlite.org/wal", res.MatchedURLs[0].URL)
	assert.Equal(t, 1, f.Model.Asks())

	snap := f.Service.QueryStats()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.Metrics.QueriesTotal.WithLabelValues("ask", "ok")))
}

func TestAsk_UnconfiguredFailsWithoutModelCall(t *testing.T) {
	f := servicetest.New(t, servicetest.Unconfigured())

	_, err := f.Service.Ask(context.Background(), "anything")

	assert.ErrorIs(t, err, search.ErrSettingsMissing)
	assert.Zero(t, f.Model.Asks())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.Metrics.QueriesTotal.WithLabelValues("ask", "error")))
}

func TestAsk_AnswerFailureCountsAsFailed(t *testing.T) {
	f := servicetest.New(t)
	f.Seed(t, "https://golang.org/doc")
	f.Model.AskErr = errors.New("model down")

	_, err := f.Service.Ask(context.Background(), "golang")

	require.Error(t, err)
	assert.Equal(t, int64(1), f.Service.QueryStats().Failed)
}

func TestSearch_ReturnsRankedHits(t *testing.T) {
	f := servicetest.New(t)
	f.Seed(t, "https://golang.org/doc", "https://redis.io/docs")

	hits, err := f.Service.Search(context.Background(), "redis", 1)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "https://redis.io/docs", hits[0].URL)
	assert.Equal(t, servicetest.TitleFor("https://redis.io/docs"), hits[0].Title)
	assert.NotEmpty(t, hits[0].Summary)
	assert.NotNil(t, hits[0].Topics)
}

func TestSearch_NothingAnalyzed(t *testing.T) {
	f := servicetest.New(t)

	_, err := f.Service.Search(context.Background(), "redis", 5)

	assert.ErrorIs(t, err, search.ErrNothingToSearch)
}

func TestStatus_ReportsConfigurationAndLastRun(t *testing.T) {
	// Given: an unconfigured service with one pending record
	f := servicetest.New(t, servicetest.Unconfigured())
	_, err := f.Service.Scan(context.Background(), f.TabsFile(t, "https://golang.org/doc"))
	require.NoError(t, err)

	// When: a run is attempted
	res, err := f.Service.Analyze(context.Background())
	require.NoError(t, err)

	// Then
	assert.Equal(t, pipeline.StatusWaitingForConfiguration, res.Status)
	rep := mustStatus(t, f)
	assert.False(t, rep.Configured)
	assert.Contains(t, rep.Missing, "apiKey")
	assert.Equal(t, 1, rep.Stats.Pending)
	require.NotNil(t, rep.LastRun)
	assert.Equal(t, pipeline.StatusWaitingForConfiguration, rep.LastRun.Status)
	assert.False(t, rep.Running)
}

func TestStartAnalysis_CompletesJob(t *testing.T) {
	f := servicetest.New(t)
	_, err := f.Service.Scan(context.Background(), f.TabsFile(t, "https://golang.org/doc"))
	require.NoError(t, err)

	job, err := f.Service.StartAnalysis()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(job.ID, "job_"))

	require.Eventually(t, func() bool {
		j, ok := f.Service.Job(job.ID)
		return ok && j.Done
	}, 5*time.Second, 10*time.Millisecond)

	j, _ := f.Service.Job(job.ID)
	require.NotNil(t, j.Result)
	assert.Equal(t, pipeline.StatusAnalysisComplete, j.Result.Status)
	assert.Equal(t, 1, j.Result.Done)
	assert.Empty(t, j.Error)
}

func TestStartAnalysis_ForgetsOldestFinishedJobs(t *testing.T) {
	// Given: more finished jobs than the service remembers
	f := servicetest.New(t)
	var ids []string
	for range service.MaxJobs + 3 {
		job, err := f.Service.StartAnalysis()
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			j, ok := f.Service.Job(job.ID)
			return ok && j.Done
		}, 5*time.Second, 5*time.Millisecond)
		ids = append(ids, job.ID)
	}

	// When: one more job starts
	last, err := f.Service.StartAnalysis()
	require.NoError(t, err)

	// Then: the oldest jobs are gone and the newest are still pollable
	for _, id := range ids[:4] {
		_, ok := f.Service.Job(id)
		assert.False(t, ok, id)
	}
	_, ok := f.Service.Job(ids[len(ids)-1])
	assert.True(t, ok)
	_, ok = f.Service.Job(last.ID)
	assert.True(t, ok)
}

func TestStartAnalysis_RefusedAfterClose(t *testing.T) {
	f := servicetest.New(t)
	f.Service.Close()

	_, err := f.Service.StartAnalysis()

	assert.Error(t, err)
}

func TestSettings_RedactedRoundTripKeepsKey(t *testing.T) {
	// Given: saved settings
	f := servicetest.New(t, servicetest.Unconfigured())
	ctx := context.Background()
	require.NoError(t, f.Service.SaveSettings(ctx, servicetest.Ready()))

	// When: the redacted view is edited and saved back
	shown, err := f.Service.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "****", shown.APIKey)
	shown.ChatDeployment = "gpt-4o"
	require.NoError(t, f.Service.SaveSettings(ctx, shown))

	// Then: the key survives
	saved, ok, err := f.Settings.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "secret-key", saved.APIKey)
	assert.Equal(t, "gpt-4o", saved.ChatDeployment)
}

func TestSaveSettings_RejectsNegativeLimits(t *testing.T) {
	f := servicetest.New(t)
	s := servicetest.Ready()
	s.MaxConcurrency = -1

	err := f.Service.SaveSettings(context.Background(), s)

	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
}

func TestExport_WritesFileUnderExportDir(t *testing.T) {
	f := servicetest.New(t)
	f.Seed(t, "https://golang.org/doc")

	res, err := f.Service.Export(context.Background(), export.FormatTXT)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "URL: https://golang.org/doc")
}

func TestLogs_CaptureAndClear(t *testing.T) {
	f := servicetest.New(t)
	f.Seed(t, "https://golang.org/doc")

	require.NotEmpty(t, f.Service.Logs())
	f.Service.ClearLogs()
	assert.Empty(t, f.Service.Logs())
}

func TestRequeue_FailedAndRestricted(t *testing.T) {
	// Given: one failed and one restricted record
	f := servicetest.New(t)
	ctx := context.Background()
	f.Seed(t, "https://golang.org/doc", "https://sqlite.org/wal")
	rows, err := f.Store.ListKnowledgeRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	rows[0].Record.Status = store.StatusFailed
	rows[1].Record.Status = store.StatusRestricted
	require.NoError(t, f.Store.PutRecord(ctx, rows[0].Record))
	require.NoError(t, f.Store.PutRecord(ctx, rows[1].Record))

	// When
	n, err := f.Service.Requeue(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = f.Service.Requeue(ctx, true)
	require.NoError(t, err)

	// Then
	assert.Equal(t, 1, n)
	st, err := f.Service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Pending)
}

func TestReset_ClearsStore(t *testing.T) {
	f := servicetest.New(t)
	f.Seed(t, "https://golang.org/doc")

	require.NoError(t, f.Service.Reset(context.Background()))

	st, err := f.Service.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Total)
}

func mustStatus(t *testing.T, f *servicetest.Fixture) service.StatusReport {
	t.Helper()
	rep, err := f.Service.Status(context.Background())
	require.NoError(t, err)
	return rep
}
