package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal     *prometheus.CounterVec
	processDuration  *prometheus.HistogramVec
	processInFlight  prometheus.Gauge
	queueLag         *prometheus.HistogramVec
	verdictTotal     *prometheus.CounterVec
	dedupeCandidates *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcs",
			Subsystem: "worker",
			Name:      "batch_process_total",
			Help:      "Total processed upload batches by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tcs",
			Subsystem: "worker",
			Name:      "batch_process_duration_seconds",
			Help:      "Batch processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tcs",
			Subsystem: "worker",
			Name:      "batch_process_in_flight",
			Help:      "Number of in-flight batch processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tcs",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between batch upload and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	verdictTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcs",
			Subsystem: "dedupe",
			Name:      "verdicts_total",
			Help:      "Total duplicate-detection verdicts by outcome.",
		},
		[]string{"service", "outcome"},
	)
	dedupeCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tcs",
			Subsystem: "dedupe",
			Name:      "candidates",
			Help:      "Distribution of verified candidates per dedupe check.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		processTotal,
		processDuration,
		processInFlight,
		queueLag,
		verdictTotal,
		dedupeCandidates,
	)

	return &WorkerMetrics{
		registry:         registry,
		processTotal:     processTotal,
		processDuration:  processDuration,
		processInFlight:  processInFlight,
		queueLag:         queueLag,
		verdictTotal:     verdictTotal,
		dedupeCandidates: dedupeCandidates,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartBatch() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishBatch(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordVerdict(service string, duplicate bool, candidates int) {
	outcome := "unique"
	if duplicate {
		outcome = "duplicate"
	}
	m.verdictTotal.WithLabelValues(service, outcome).Inc()
	m.dedupeCandidates.WithLabelValues(service).Observe(float64(candidates))
}
