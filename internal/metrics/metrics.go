package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barowatch_provider_calls_total",
			Help: "Total pressure forecast provider calls",
		},
		[]string{"provider", "status"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "barowatch_provider_latency_seconds",
			Help:    "Provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	SamplesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barowatch_samples_ingested_total",
			Help: "Total normalized pressure samples received from the provider",
		},
		[]string{"provider"},
	)

	SeriesQualityFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barowatch_series_quality_flags_total",
			Help: "Quality flags raised on fetched pressure series",
		},
		[]string{"flag"},
	)

	AlertDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barowatch_alert_decisions_total",
			Help: "Alert decisions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	AlertPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "barowatch_alert_pass_duration_seconds",
			Help:    "Duration of a full alert pass over all users",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	AlertPassUserFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barowatch_alert_pass_user_failures_total",
			Help: "Users whose evaluation failed during an alert pass",
		},
	)

	AlertReleaseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barowatch_alert_release_failures_total",
			Help: "Ledger claims left in place after a failed send, blocking that day's retry",
		},
	)
)
