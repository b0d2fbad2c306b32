// Package metrics exposes queue and HTTP metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dontdude/jobstream/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jobstream"

// Metrics owns a private registry with the queue collectors, HTTP collectors and the Go
// runtime collectors.
type Metrics struct {
	registry *prometheus.Registry

	admitted  prometheus.Counter
	rejected  *prometheus.CounterVec
	removed   prometheus.Counter
	clears    prometheus.Counter
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec

	httpDuration *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
	httpInFlight prometheus.Gauge
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_admitted_total",
			Help:      "Total number of jobs appended to the queue",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Total number of refused admissions and removals",
		}, []string{"reason"}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_removed_total",
			Help:      "Total number of pending jobs removed before running",
		}),
		clears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_clears_total",
			Help:      "Total number of times the queue was cleared",
		}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs processed by the worker",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Job body duration in seconds",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		}),
	}

	m.registry.MustRegister(
		m.admitted, m.rejected, m.removed, m.clears, m.processed, m.duration,
		m.httpDuration, m.httpRequests, m.httpInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) JobAdmitted() { m.admitted.Inc() }
func (m *Metrics) JobRemoved() { m.removed.Inc() }
func (m *Metrics) QueueCleared() { m.clears.Inc() }

// JobRejected counts a refused operation under reason, e.g. "duplicate" or "running".
func (m *Metrics) JobRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// ObserveOutcome records a finished job body.
func (m *Metrics) ObserveOutcome(outcome domain.Outcome) {
	status := string(outcome.Status)
	m.processed.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(outcome.Duration.Seconds())
}

// RecordHTTP updates the HTTP duration histogram and request counter.
func (m *Metrics) RecordHTTP(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.httpRequests.WithLabelValues(method, path, code).Inc()
}

func (m *Metrics) IncInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecInFlight() { m.httpInFlight.Dec() }

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
