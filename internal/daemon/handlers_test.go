package daemon

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/service"
	"github.com/Aman-CERP/pagemind/internal/service/servicetest"
	"github.com/Aman-CERP/pagemind/internal/store"
)

func call(t *testing.T, h map[Method]HandlerFunc, m Method, params any) (Reply, error) {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		require.NoError(t, err)
		raw = b
	}
	fn, ok := h[m]
	require.True(t, ok, "no handler for %s", m)
	return fn(context.Background(), raw)
}

func TestHandlers_CoverEveryMethod(t *testing.T) {
	h := Handlers(servicetest.New(t).Service)
	for _, m := range []Method{
		MethodPing, MethodGetStatus, MethodGetStats, MethodStartScan, MethodRunAnalysis,
		MethodGetJob, MethodAskQuery, MethodSearch, MethodGetSettings, MethodSaveSettings,
		MethodExportJSONL, MethodExportTXT, MethodGetLogs, MethodClearLogs, MethodRequeue,
		MethodQueryStats,
	} {
		assert.Contains(t, h, m)
	}
}

func TestStartScan_ScansAndStartsJob(t *testing.T) {
	// Given
	f := servicetest.New(t)
	h := Handlers(f.Service)
	src := f.TabsFile(t, "https://golang.org/doc", "https://redis.io/docs")

	// When
	reply, err := call(t, h, MethodStartScan, ScanParams{Kind: src.Kind, Path: src.Path})

	// Then
	require.NoError(t, err)
	assert.Equal(t, TypeScanStarted, reply.Type)
	out := reply.Payload.(ScanReply)
	require.Len(t, out.Scans, 1)
	assert.Equal(t, 2, out.Scans[0].Inserted)
	require.NotEmpty(t, out.JobID)

	require.Eventually(t, func() bool {
		j, ok := f.Service.Job(out.JobID)
		return ok && j.Done
	}, 5*time.Second, 10*time.Millisecond)
	st, err := f.Service.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Done)
}

func TestStartScan_NoAnalyze(t *testing.T) {
	f := servicetest.New(t)
	src := f.TabsFile(t, "https://golang.org/doc")

	reply, err := call(t, Handlers(f.Service), MethodStartScan, ScanParams{Kind: src.Kind, Path: src.Path, NoAnalyze: true})

	require.NoError(t, err)
	assert.Empty(t, reply.Payload.(ScanReply).JobID)
	st, err := f.Service.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Pending)
}

func TestStartScan_ConfiguredSources(t *testing.T) {
	probe := servicetest.New(t)
	src := probe.TabsFile(t, "https://golang.org/doc")
	f := servicetest.New(t, servicetest.WithSources(src))

	reply, err := call(t, Handlers(f.Service), MethodStartScan, ScanParams{NoAnalyze: true})

	require.NoError(t, err)
	assert.Len(t, reply.Payload.(ScanReply).Scans, 1)
}

func TestRunAnalysis_WaitReturnsResult(t *testing.T) {
	f := servicetest.New(t)
	_, err := f.Service.Scan(context.Background(), f.TabsFile(t, "https://golang.org/doc"))
	require.NoError(t, err)

	reply, err := call(t, Handlers(f.Service), MethodRunAnalysis, AnalysisParams{Wait: true})

	require.NoError(t, err)
	assert.Equal(t, TypeAnalysisDone, reply.Type)
	res := reply.Payload.(pipeline.RunResult)
	assert.Equal(t, pipeline.StatusAnalysisComplete, res.Status)
	assert.Equal(t, 1, res.Done)
}

func TestGetJob_Unknown(t *testing.T) {
	_, err := call(t, Handlers(servicetest.New(t).Service), MethodGetJob, JobParams{JobID: "job_nope"})

	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
}

func TestAskAndSearch(t *testing.T) {
	f := servicetest.New(t)
	f.Seed(t, "https://golang.org/doc", "https://sqlite.org/wal")
	h := Handlers(f.Service)

	reply, err := call(t, h, MethodAskQuery, AskParams{Question: "sqlite wal"})
	require.NoError(t, err)
	assert.Equal(t, TypeAnswer, reply.Type)

	reply, err = call(t, h, MethodSearch, SearchParams{Query: "golang", TopK: 1})
	require.NoError(t, err)
	hits := reply.Payload.([]service.Hit)
	require.Len(t, hits, 1)
	assert.Equal(t, "https://golang.org/doc", hits[0].URL)

	_, err = call(t, h, MethodAskQuery, AskParams{Question: "   "})
	assert.Equal(t, apperrors.ErrCodeQueryEmpty, apperrors.GetCode(err))
}

func TestSaveSettings_MergesPartialPayload(t *testing.T) {
	// Given: complete saved settings
	f := servicetest.New(t, servicetest.Unconfigured())
	require.NoError(t, f.Service.SaveSettings(context.Background(), servicetest.Ready()))
	h := Handlers(f.Service)

	// When: only one field is sent
	reply, err := call(t, h, MethodSaveSettings, map[string]any{"chatDeployment": "gpt-4o"})

	// Then: the rest is kept and the key stays redacted on the wire
	require.NoError(t, err)
	out := reply.Payload.(SettingsReply)
	assert.Equal(t, "gpt-4o", out.Settings.ChatDeployment)
	assert.Equal(t, "****", out.Settings.APIKey)
	assert.Empty(t, out.Missing)

	saved, _, err := f.Settings.Load()
	require.NoError(t, err)
	assert.Equal(t, "secret-key", saved.APIKey)
}

func TestSaveSettings_RequiresPayload(t *testing.T) {
	_, err := call(t, Handlers(servicetest.New(t).Service), MethodSaveSettings, nil)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
}

func TestGetSettings_ListsMissing(t *testing.T) {
	reply, err := call(t, Handlers(servicetest.New(t, servicetest.Unconfigured()).Service), MethodGetSettings, nil)

	require.NoError(t, err)
	assert.Contains(t, reply.Payload.(SettingsReply).Missing, "endpoint")
}

func TestExport_ReturnsFilename(t *testing.T) {
	f := servicetest.New(t)
	f.Seed(t, "https://golang.org/doc")

	reply, err := call(t, Handlers(f.Service), MethodExportJSONL, nil)

	require.NoError(t, err)
	out := reply.Payload.(ExportReply)
	assert.Regexp(t, `^bookmark-knowledge-export-.*\.jsonl$`, out.Filename)
	assert.Equal(t, 1, out.Rows)
	_, err = os.Stat(out.Path)
	assert.NoError(t, err)
}

func TestLogs_GetAndClear(t *testing.T) {
	f := servicetest.New(t)
	f.Seed(t, "https://golang.org/doc")
	h := Handlers(f.Service)

	_, err := call(t, h, MethodClearLogs, nil)
	require.NoError(t, err)
	assert.Zero(t, f.Ring.Len())
}

func TestRequeue_Handler(t *testing.T) {
	f := servicetest.New(t)
	f.Seed(t, "https://golang.org/doc")
	rows, err := f.Store.ListKnowledgeRows(context.Background())
	require.NoError(t, err)
	rows[0].Record.Status = store.StatusRestricted
	require.NoError(t, f.Store.PutRecord(context.Background(), rows[0].Record))

	reply, err := call(t, Handlers(f.Service), MethodRequeue, RequeueParams{Restricted: true})

	require.NoError(t, err)
	assert.Equal(t, 1, reply.Payload.(RequeueReply).Requeued)
}

func TestDecodeParams_Invalid(t *testing.T) {
	_, err := decodeParams[AskParams](json.RawMessage(`{"question": 5}`))
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))

	p, err := decodeParams[AskParams](json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Empty(t, p.Question)
}

func TestClient_RoundTripThroughSocket(t *testing.T) {
	// Given: a daemon socket over a seeded service
	f := servicetest.New(t)
	f.Seed(t, "https://golang.org/doc", "https://redis.io/docs")
	client, _ := startServer(t, Handlers(f.Service))
	ctx := context.Background()

	// When / Then
	st, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Done)

	hits, err := client.Search(ctx, "redis", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "https://redis.io/docs", hits[0].URL)

	ans, err := client.Ask(ctx, "redis docs")
	require.NoError(t, err)
	assert.Equal(t, "Answer to redis docs", ans.Answer)

	res, err := client.Analyze(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusIdle, res.Status)
}
