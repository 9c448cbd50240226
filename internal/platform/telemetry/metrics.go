// Package telemetry wires prometheus metrics and OpenTelemetry tracing for the
// clinic server.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinic"

// Collector owns every metric the server exports. Each collector has its own
// registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge

	LifecycleOps    *prometheus.CounterVec
	ReviewConflicts prometheus.Counter
	GradesUpserted  *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Requests currently being served.",
		}),

		LifecycleOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consultation",
			Name:      "lifecycle_operations_total",
			Help:      "Consultation lifecycle operations by operation and outcome.",
		}, []string{"operation", "outcome"}),

		ReviewConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consultation",
			Name:      "review_conflicts_total",
			Help:      "initiate-review calls answered with an existing review version.",
		}),

		GradesUpserted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grading",
			Name:      "grades_upserted_total",
			Help:      "Grades written, split into created and updated.",
		}, []string{"result"}),

		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Lifecycle events handed to the publisher, by type and result.",
		}, []string{"type", "result"}),
	}
}

// Registry exposes the underlying registry for gathering in tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveLifecycle counts one lifecycle operation. Safe on a nil collector.
func (c *Collector) ObserveLifecycle(operation, outcome string) {
	if c == nil {
		return
	}
	c.LifecycleOps.WithLabelValues(operation, outcome).Inc()
	if operation == "initiate_review" && outcome == "already_exists" {
		c.ReviewConflicts.Inc()
	}
}

// ObserveGrade counts a grading upsert. Safe on a nil collector.
func (c *Collector) ObserveGrade(created bool) {
	if c == nil {
		return
	}
	result := "updated"
	if created {
		result = "created"
	}
	c.GradesUpserted.WithLabelValues(result).Inc()
}

// ObserveEvent counts a publish attempt. Safe on a nil collector.
func (c *Collector) ObserveEvent(eventType string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.EventsPublished.WithLabelValues(eventType, result).Inc()
}
