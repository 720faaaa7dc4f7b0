package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/store"
)

func TestRunObserver_CountsRecordsAndRuns(t *testing.T) {
	// Given
	m := NewMetrics()
	obs := m.RunObserver()

	// When: a run of three records finishes
	obs.RunStarted(3, 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ActiveWorkers))
	obs.RecordFinished(pipeline.Outcome{Status: store.StatusDone, Duration: time.Second})
	obs.RecordFinished(pipeline.Outcome{Status: store.StatusDone, Duration: time.Second})
	obs.RecordFinished(pipeline.Outcome{Status: store.StatusRestricted})
	assert.Equal(t, float64(0), testutil.ToFloat64(m.PendingRecords))
	obs.RunFinished(pipeline.RunResult{Status: pipeline.StatusAnalysisComplete})

	// Then
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecordsTotal.WithLabelValues("done")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RecordsTotal.WithLabelValues("restricted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("analysis_complete")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveWorkers))
}

func TestMetrics_HandlerExposesCollectors(t *testing.T) {
	m := NewMetrics()
	m.ObserveQuery("ask", "ok", 250*time.Millisecond)
	m.ObserveCache(true)
	m.SetStoreStats(store.Stats{Total: 3, Pending: 1, Done: 2})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	assert.Contains(t, out, `pagemind_queries_total{kind="ask",outcome="ok"} 1`)
	assert.Contains(t, out, `pagemind_embedding_cache_lookups_total{result="hit"} 1`)
	assert.Contains(t, out, `pagemind_records{status="done"} 2`)
	assert.True(t, strings.Contains(out, "go_goroutines"))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not panic on duplicate registration.
	a, b := NewMetrics(), NewMetrics()
	a.ObserveCache(false)
	assert.Equal(t, float64(1), testutil.ToFloat64(a.EmbedCacheTotal.WithLabelValues("miss")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.EmbedCacheTotal.WithLabelValues("miss")))
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{100 * time.Millisecond, BucketP500},
		{700 * time.Millisecond, BucketP1000},
		{2 * time.Second, BucketP3000},
		{5 * time.Second, BucketP10000},
		{30 * time.Second, BucketSlow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	buf := NewCircularBuffer[string](3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		buf.Add(s)
	}
	assert.Equal(t, []string{"c", "d", "e"}, buf.Items())
	assert.Equal(t, 3, buf.Size())
	assert.NotNil(t, NewCircularBuffer[int](0).Items())
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"how", "does", "sqlite", "wal", "mode", "work"}, ExtractTerms("How does SQLite WAL mode work?"))
	assert.Nil(t, ExtractTerms("  a on "))
}

func TestQueryStats_Snapshot(t *testing.T) {
	// Given
	since := time.Unix(1_700_000_000, 0)
	q := NewQueryStats(since)

	// When
	q.Record(QueryEvent{Kind: QueryAsk, Query: "sqlite wal mode", ResultCount: 3, Latency: 2 * time.Second})
	q.Record(QueryEvent{Kind: QueryAsk, Query: "  SQLite   WAL mode ", ResultCount: 2, Latency: 2 * time.Second})
	q.Record(QueryEvent{Kind: QuerySearch, Query: "kubernetes", ResultCount: 0, Latency: time.Millisecond})
	q.Record(QueryEvent{Kind: QueryAsk, Query: "broken", Failed: true})

	// Then
	s := q.Snapshot()
	assert.Equal(t, int64(4), s.TotalQueries)
	assert.Equal(t, int64(3), s.ByKind[QueryAsk])
	assert.Equal(t, int64(1), s.ByKind[QuerySearch])
	assert.Equal(t, int64(1), s.Failed)
	assert.Equal(t, int64(1), s.NoMatchCount)
	assert.Equal(t, []string{"kubernetes"}, s.NoMatchQueries)
	assert.Equal(t, int64(1), s.ExactRepeats)
	assert.Equal(t, 0.25, s.ExactRepeatRate)
	assert.Equal(t, int64(2), s.Latency[BucketP3000])
	require.NotEmpty(t, s.TopTerms)
	assert.Equal(t, int64(2), s.TopTerms[0].Count)
	assert.Equal(t, since, s.Since)
}
