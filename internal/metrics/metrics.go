// Package metrics defines the Prometheus collectors of the service.
// All metrics use the "weather_anomaly_" prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "weather_anomaly"

// --- Detection Metrics ---

var (
	// DetectionRuns counts detection runs by outcome
	// (anomalies_found, no_anomalies, rejected, failed).
	DetectionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "detection_runs_total",
		Help:      "Total detection runs, by outcome.",
	}, []string{"status"})

	// AnomaliesDetected counts flagged readings by variable.
	AnomaliesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "anomalies_detected_total",
		Help:      "Total anomalous readings reported, by variable.",
	}, []string{"variable"})

	// ObservationsProcessed counts observations scored.
	ObservationsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observations_processed_total",
		Help:      "Total observations submitted to the detector.",
	})

	// DetectionDuration tracks time spent inside the detector.
	DetectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "detection_duration_seconds",
		Help:      "Detector run time in seconds.",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	})
)

// --- Side-effect Metrics ---

var (
	// RunsPersisted counts audit-log writes by result (ok, error).
	RunsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_persisted_total",
		Help:      "Detection runs written to the audit log, by result.",
	}, []string{"result"})

	// AlertsPublished counts MQTT anomaly alerts by result (ok, error).
	AlertsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_published_total",
		Help:      "Anomaly alerts published over MQTT, by result.",
	}, []string{"result"})
)

// --- HTTP Metrics ---

var (
	// HTTPRequests counts requests by method, route pattern and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests, by method, route and status code.",
	}, []string{"method", "route", "status"})
)
