package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Detection outcomes used as the "outcome" label.
const (
	outcomeSuccess          = "success"
	outcomeInvalidRequest   = "invalid_request"
	outcomeInvalidParameter = "invalid_parameter"
	outcomeInsufficientData = "insufficient_data"
	outcomeError            = "error"
)

// Metrics holds the server's Prometheus collectors. They are registered on
// a private registry so several servers (e.g. in tests) can coexist.
type Metrics struct {
	registry *prometheus.Registry

	detections    *prometheus.CounterVec
	pointsScored  prometheus.Counter
	anomalies     prometheus.Counter
	scoreDuration prometheus.Histogram
	rateLimited   prometheus.Counter
}

// NewMetrics creates and registers the server collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		detections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "anomaly",
				Name:      "detections_total",
				Help:      "Detection requests by outcome.",
			},
			[]string{"outcome"},
		),
		pointsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anomaly",
			Name:      "points_scored_total",
			Help:      "Observations scored across all successful detections.",
		}),
		anomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anomaly",
			Name:      "anomalies_flagged_total",
			Help:      "Observations flagged as anomalous.",
		}),
		scoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "anomaly",
			Name:      "detection_duration_seconds",
			Help:      "Time spent scoring a detection request.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anomaly",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
	m.registry.MustRegister(
		m.detections,
		m.pointsScored,
		m.anomalies,
		m.scoreDuration,
		m.rateLimited,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) recordSuccess(points, flagged int, elapsed time.Duration) {
	m.detections.WithLabelValues(outcomeSuccess).Inc()
	m.pointsScored.Add(float64(points))
	m.anomalies.Add(float64(flagged))
	m.scoreDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) recordFailure(outcome string) {
	m.detections.WithLabelValues(outcome).Inc()
}
