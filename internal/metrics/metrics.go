// Package metrics exposes the service's Prometheus collectors.
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

// Metrics holds the collectors registered on a private registry, so tests can
// build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	ratingsSubmitted     *prometheus.CounterVec
	milestoneTransitions *prometheus.CounterVec
	payouts              *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
}

// New creates a Metrics instance with Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ratingsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freelance_ratings_submitted_total",
				Help: "Ratings accepted, split by whether they were classified as outliers.",
			},
			[]string{"outlier"},
		),
		milestoneTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freelance_milestone_transitions_total",
				Help: "Milestone status changes by target status.",
			},
			[]string{"to"},
		),
		payouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freelance_payouts_total",
				Help: "Milestone payout attempts by result.",
			},
			[]string{"result"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "freelance_http_request_duration_seconds",
				Help:    "HTTP request latency by route pattern.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
}

// RatingSubmitted counts an applied rating.
func (m *Metrics) RatingSubmitted(outlier bool) {
	if m == nil {
		return
	}
	m.ratingsSubmitted.WithLabelValues(strconv.FormatBool(outlier)).Inc()
}

// MilestoneTransition counts a milestone moving to status to.
func (m *Metrics) MilestoneTransition(to string) {
	if m == nil {
		return
	}
	m.milestoneTransitions.WithLabelValues(to).Inc()
}

// Payout counts a payout attempt; result is "success" or "failure".
func (m *Metrics) Payout(result string) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(result).Inc()
}

// ObserveRequest records the latency of one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
