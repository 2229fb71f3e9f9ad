package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genstudio_jobs_submitted_total",
			Help: "Generation jobs accepted for submission",
		},
		[]string{"generation_type"},
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genstudio_jobs_finished_total",
			Help: "Generation jobs that reached a terminal status",
		},
		[]string{"status", "kind"},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genstudio_provider_call_duration_seconds",
			Help:    "Latency of generation provider calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	ActivePollLoops = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "genstudio_active_poll_loops",
			Help: "Poll loops currently driving a job",
		},
	)

	DeliveryURLs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genstudio_delivery_urls_total",
			Help: "Delivery URL materializations by result",
		},
		[]string{"result"},
	)

	ReconciledAssets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "genstudio_reconciled_assets_total",
			Help: "Orphaned generation assets linked by the reconciliation pass",
		},
	)
)
