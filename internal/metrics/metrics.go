// Package metrics provides the Prometheus collectors exported by the GreenEye server.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kiranshivaraju/greeneye/pkg/models"
)

// BatchMetrics tracks model calls, per-image outcomes and job lifecycles.
type BatchMetrics struct {
	inferenceTotal    *prometheus.CounterVec
	inferenceDuration *prometheus.HistogramVec
	imagesTotal       *prometheus.CounterVec
	jobsSubmitted     prometheus.Counter
	jobsFinished      *prometheus.CounterVec
	jobsInFlight      prometheus.Gauge
	jobDuration       prometheus.Histogram
}

// NewBatchMetrics creates BatchMetrics and registers them on registry.
func NewBatchMetrics(registry *prometheus.Registry) (*BatchMetrics, error) {
	m := &BatchMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register batch metrics: %w", err)
	}
	return m, nil
}

func (m *BatchMetrics) initMetrics() {
	m.inferenceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "greeneye_inference_calls_total",
		Help: "Total number of model calls by provider, dimension and outcome.",
	}, []string{"provider", "dimension", "outcome"})

	m.inferenceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "greeneye_inference_duration_seconds",
		Help:    "Duration of model calls in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"provider", "dimension"})

	m.imagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "greeneye_images_analyzed_total",
		Help: "Total number of analyzed images by result status.",
	}, []string{"status"})

	m.jobsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "greeneye_jobs_submitted_total",
		Help: "Total number of accepted batch submissions.",
	})

	m.jobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "greeneye_jobs_finished_total",
		Help: "Total number of batch jobs that reached a terminal status.",
	}, []string{"status"})

	m.jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "greeneye_jobs_in_flight",
		Help: "Number of batch jobs currently processing.",
	})

	m.jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "greeneye_job_duration_seconds",
		Help:    "Wall-clock duration of batch jobs from start to finalization.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
}

// ObserveInference records one model call attempt.
func (m *BatchMetrics) ObserveInference(provider string, d models.Dimension, outcome string, elapsed time.Duration) {
	m.inferenceTotal.WithLabelValues(provider, string(d), outcome).Inc()
	m.inferenceDuration.WithLabelValues(provider, string(d)).Observe(elapsed.Seconds())
}

// JobStarted counts a submission and marks it in flight.
func (m *BatchMetrics) JobStarted() {
	m.jobsSubmitted.Inc()
	m.jobsInFlight.Inc()
}

// JobFinished records the terminal status of a job.
func (m *BatchMetrics) JobFinished(status string, elapsed time.Duration) {
	m.jobsFinished.WithLabelValues(status).Inc()
	m.jobsInFlight.Dec()
	m.jobDuration.Observe(elapsed.Seconds())
}

// ImageAnalyzed records one persisted image result.
func (m *BatchMetrics) ImageAnalyzed(status string) {
	m.imagesTotal.WithLabelValues(status).Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *BatchMetrics) Collect(ch chan<- prometheus.Metric) {
	m.inferenceTotal.Collect(ch)
	m.inferenceDuration.Collect(ch)
	m.imagesTotal.Collect(ch)
	ch <- m.jobsSubmitted
	m.jobsFinished.Collect(ch)
	ch <- m.jobsInFlight
	ch <- m.jobDuration
}

// Describe implements the prometheus.Collector interface.
func (m *BatchMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.inferenceTotal.Describe(ch)
	m.inferenceDuration.Describe(ch)
	m.imagesTotal.Describe(ch)
	ch <- m.jobsSubmitted.Desc()
	m.jobsFinished.Describe(ch)
	ch <- m.jobsInFlight.Desc()
	ch <- m.jobDuration.Desc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
