package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sense"

var (
	SnapshotsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_published_total",
		Help:      "Snapshots handed to the broadcast hub.",
	})

	StaleResultsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_results_dropped_total",
		Help:      "Analysis results discarded because a newer one was already delivered.",
	})

	AnalyzerFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analyzer_fallbacks_total",
		Help:      "Samples answered with a synthetic snapshot, by reason.",
	}, []string{"reason"})

	AnalyzerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "analyzer_latency_seconds",
		Help:      "Wall time of remote analyzer calls.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	})

	JoinRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "join_rejections_total",
		Help:      "Rejected websocket joins, by reason.",
	}, []string{"reason"})

	ImplicitDisconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "implicit_disconnects_total",
		Help:      "Connections dropped after a failed send, by role.",
	}, []string{"role"})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "insight_persist_failures_total",
		Help:      "Snapshots that could not be appended to the insight stream.",
	})

	OpenConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_connections",
		Help:      "Registered websocket connections, by role.",
	}, []string{"role"})
)
