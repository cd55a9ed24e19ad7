// Package metrics exposes the worker's Prometheus registry: ingestion
// outcomes and durations, query outcomes and iteration counts, queue lag.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	ingestTotal     *prometheus.CounterVec
	ingestDuration  *prometheus.HistogramVec
	ingestInFlight  prometheus.Gauge
	queryTotal      *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	queryIterations prometheus.Histogram
	queueLag        *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dqa",
			Subsystem: "worker",
			Name:      "ingest_total",
			Help:      "Total ingested documents by status.",
		},
		[]string{"service", "status"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dqa",
			Subsystem: "worker",
			Name:      "ingest_duration_seconds",
			Help:      "Document ingestion duration in seconds by status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"service", "status"},
	)
	ingestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dqa",
			Subsystem: "worker",
			Name:      "ingest_in_flight",
			Help:      "Number of in-flight document ingestions.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dqa",
			Subsystem: "worker",
			Name:      "query_total",
			Help:      "Total answered queries by status.",
		},
		[]string{"service", "status"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dqa",
			Subsystem: "worker",
			Name:      "query_duration_seconds",
			Help:      "Query pipeline duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	queryIterations := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dqa",
			Subsystem: "worker",
			Name:      "query_iterations",
			Help:      "Agent loop iterations per query.",
			Buckets:   []float64{1, 2, 3},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dqa",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between job enqueue and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		ingestTotal, ingestDuration, ingestInFlight,
		queryTotal, queryDuration, queryIterations, queueLag,
	)

	return &WorkerMetrics{
		registry:        registry,
		ingestTotal:     ingestTotal,
		ingestDuration:  ingestDuration,
		ingestInFlight:  ingestInFlight,
		queryTotal:      queryTotal,
		queryDuration:   queryDuration,
		queryIterations: queryIterations,
		queueLag:        queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartIngest() {
	m.ingestInFlight.Inc()
}

func (m *WorkerMetrics) FinishIngest(service string, duration time.Duration, err error) {
	m.ingestInFlight.Dec()
	m.ingestTotal.WithLabelValues(service, statusLabel(err)).Inc()
	m.ingestDuration.WithLabelValues(service, statusLabel(err)).Observe(duration.Seconds())
}

func (m *WorkerMetrics) FinishQuery(service string, duration time.Duration, iterations int, err error) {
	m.queryTotal.WithLabelValues(service, statusLabel(err)).Inc()
	m.queryDuration.WithLabelValues(service, statusLabel(err)).Observe(duration.Seconds())
	if iterations > 0 {
		m.queryIterations.Observe(float64(iterations))
	}
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
