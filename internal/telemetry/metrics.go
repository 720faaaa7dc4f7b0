// Package telemetry exposes Prometheus metrics for analysis runs, queries
// and the HTTP API, plus an in-process summary of recent questions.
// Nothing is reported anywhere unless /metrics is scraped.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/store"
)

const namespace = "pagemind"

// Metrics holds every collector on a private registry so tests and several
// daemons in one process never collide.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	RecordsTotal     *prometheus.CounterVec
	RecordDuration   *prometheus.HistogramVec
	ActiveWorkers    prometheus.Gauge
	PendingRecords   prometheus.Gauge
	QueriesTotal     *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
	RecordsByStatus  *prometheus.GaugeVec
	EmbedCacheTotal  *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPRequestDelay *prometheus.HistogramVec
}

// NewMetrics registers all collectors, including Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_runs_total",
			Help:      "Analysis runs by final status.",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_run_duration_seconds",
			Help:      "Wall time of analysis runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900},
		}),
		RecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Records that reached a terminal status.",
		}, []string{"status"}),
		RecordDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "record_duration_seconds",
			Help:      "Time from processing to terminal status per record.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"status"}),
		ActiveWorkers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Workers in the current analysis run.",
		}),
		PendingRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_remaining_records",
			Help:      "Records in the current run snapshot not yet finished.",
		}),
		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Ask and search requests by outcome.",
		}, []string{"kind", "outcome"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Latency of ask and search requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		RecordsByStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Stored records by processing status.",
		}, []string{"status"}),
		EmbedCacheTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_lookups_total",
			Help:      "Embedding cache lookups by result.",
		}, []string{"result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDelay: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveQuery records one ask or search call.
func (m *Metrics) ObserveQuery(kind, outcome string, d time.Duration) {
	m.QueriesTotal.WithLabelValues(kind, outcome).Inc()
	m.QueryDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveCache records an embedding cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.EmbedCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	m.EmbedCacheTotal.WithLabelValues("miss").Inc()
}

// SetStoreStats publishes stored record counts.
func (m *Metrics) SetStoreStats(s store.Stats) {
	m.RecordsByStatus.WithLabelValues(string(store.StatusPending)).Set(float64(s.Pending))
	m.RecordsByStatus.WithLabelValues(string(store.StatusProcessing)).Set(float64(s.Processing))
	m.RecordsByStatus.WithLabelValues(string(store.StatusDone)).Set(float64(s.Done))
	m.RecordsByStatus.WithLabelValues(string(store.StatusFailed)).Set(float64(s.Failed))
	m.RecordsByStatus.WithLabelValues(string(store.StatusRestricted)).Set(float64(s.Restricted))
}

// RunObserver adapts Metrics to pipeline.ProgressObserver.
func (m *Metrics) RunObserver() pipeline.ProgressObserver { return runObserver{m} }

type runObserver struct{ m *Metrics }

func (o runObserver) RunStarted(total, workers int) {
	o.m.ActiveWorkers.Set(float64(workers))
	o.m.PendingRecords.Set(float64(total))
}

func (o runObserver) RecordStarted(*store.Record) {}

func (o runObserver) RecordFinished(out pipeline.Outcome) {
	status := string(out.Status)
	o.m.RecordsTotal.WithLabelValues(status).Inc()
	o.m.RecordDuration.WithLabelValues(status).Observe(out.Duration.Seconds())
	o.m.PendingRecords.Dec()
}

func (o runObserver) RunFinished(res pipeline.RunResult) {
	o.m.RunsTotal.WithLabelValues(string(res.Status)).Inc()
	o.m.RunDuration.Observe(res.Duration().Seconds())
	o.m.ActiveWorkers.Set(0)
	o.m.PendingRecords.Set(0)
}
