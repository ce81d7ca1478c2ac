// Package observability centralises Prometheus metrics for the bridge.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	importResultCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coachsync",
		Subsystem: "import",
		Name:      "results_total",
		Help:      "Import attempts grouped by outcome code.",
	}, []string{"code"})

	lastImportGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coachsync",
		Subsystem: "import",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful workout import.",
	})

	sharesCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coachsync",
		Subsystem: "share",
		Name:      "created_total",
		Help:      "Number of coach→athlete shares created.",
	})

	garminRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coachsync",
		Subsystem: "garmin",
		Name:      "request_duration_seconds",
		Help:      "Garmin Connect request latency per operation and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
)

func init() {
	prometheus.MustRegister(importResultCounter, lastImportGauge, sharesCreatedCounter, garminRequestDuration)
}

// RecordImportResult counts one import attempt by outcome code.
func RecordImportResult(code string) {
	importResultCounter.WithLabelValues(code).Inc()
	if code == "success" {
		lastImportGauge.SetToCurrentTime()
	}
}

// RecordShareCreated counts one created share.
func RecordShareCreated() {
	sharesCreatedCounter.Inc()
}

// ObserveGarminRequest records one remote call's latency. outcome is "ok" or
// the fault kind that classified the failure.
func ObserveGarminRequest(operation, outcome string, elapsed time.Duration) {
	garminRequestDuration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}
