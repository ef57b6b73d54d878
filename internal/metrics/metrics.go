// Package metrics holds the Prometheus collectors for ingestion, storage,
// notification and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mclog"

// Metrics is one set of collectors registered on its own registry, so tests
// can build isolated instances.
type Metrics struct {
	reg *prometheus.Registry

	LinesRead     prometheus.Counter
	Matches       *prometheus.CounterVec
	Inserted      *prometheus.CounterVec
	Duplicates    *prometheus.CounterVec
	StorageErrors *prometheus.CounterVec
	Unmatched     prometheus.Counter
	TailOffset    prometheus.Gauge

	NotifySent    *prometheus.CounterVec
	NotifyDropped *prometheus.CounterVec
	Published     *prometheus.CounterVec

	ExpiredFlags prometheus.Counter

	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	SSEClients         prometheus.Gauge
}

// New registers all collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		LinesRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_lines_total",
			Help:      "Total number of log lines read",
		}),
		Matches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_matches_total",
			Help:      "Total number of grammar matches by kind",
		}, []string{"kind"}),
		Inserted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_inserted_total",
			Help:      "Total number of records inserted by table",
		}, []string{"table"}),
		Duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_duplicate_total",
			Help:      "Total number of records skipped as duplicates by table",
		}, []string{"table"}),
		StorageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Total number of failed storage calls by operation",
		}, []string{"operation"}),
		Unmatched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_unmatched_lines_total",
			Help:      "Total number of lines no grammar matched",
		}),
		TailOffset: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_tail_offset_bytes",
			Help:      "Byte offset of the last consumed line",
		}),

		NotifySent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_sent_total",
			Help:      "Total number of notifications delivered by sink",
		}, []string{"sink"}),
		NotifyDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_dropped_total",
			Help:      "Total number of notifications dropped by sink",
		}, []string{"sink"}),
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pubsub_published_total",
			Help:      "Total number of records published by table",
		}, []string{"table"}),

		ExpiredFlags: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "players_flags_expired_total",
			Help:      "Total number of players whose ban or mute flag was cleared by the expiry sweep",
		}),

		APIRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		}, []string{"method", "route", "status_code"}),
		APIRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
		SSEClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_sse_clients",
			Help:      "Current number of connected stream clients",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RecordAPIRequest records one finished HTTP request.
func (m *Metrics) RecordAPIRequest(method, route string, status int, d time.Duration) {
	m.APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Ingest adapts Metrics to the ingester's Recorder interface.
func (m *Metrics) Ingest() IngestRecorder { return IngestRecorder{m} }

// IngestRecorder feeds ingestion events into Metrics.
type IngestRecorder struct{ m *Metrics }

func (r IngestRecorder) LineRead()              { r.m.LinesRead.Inc() }
func (r IngestRecorder) Matched(kind string)    { r.m.Matches.WithLabelValues(kind).Inc() }
func (r IngestRecorder) Inserted(table string)  { r.m.Inserted.WithLabelValues(table).Inc() }
func (r IngestRecorder) Duplicate(table string) { r.m.Duplicates.WithLabelValues(table).Inc() }
func (r IngestRecorder) StorageError(op string) { r.m.StorageErrors.WithLabelValues(op).Inc() }
func (r IngestRecorder) Unmatched()             { r.m.Unmatched.Inc() }
func (r IngestRecorder) Offset(offset int64)    { r.m.TailOffset.Set(float64(offset)) }

// Notify adapts Metrics to the notifier and publisher Recorder interfaces.
func (m *Metrics) Notify() NotifyRecorder { return NotifyRecorder{m} }

// NotifyRecorder feeds delivery outcomes into Metrics.
type NotifyRecorder struct{ m *Metrics }

func (r NotifyRecorder) Sent(sink string)       { r.m.NotifySent.WithLabelValues(sink).Inc() }
func (r NotifyRecorder) Dropped(sink string)    { r.m.NotifyDropped.WithLabelValues(sink).Inc() }
func (r NotifyRecorder) Published(table string) { r.m.Published.WithLabelValues(table).Inc() }

// FlagsExpired counts players cleared by the expiry sweep.
func (m *Metrics) FlagsExpired(n int) { m.ExpiredFlags.Add(float64(n)) }
