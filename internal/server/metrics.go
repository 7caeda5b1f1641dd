package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the server's operational counters and gauges, exposed on
// /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	HandsStarted      *prometheus.CounterVec
	HandsCompleted    *prometheus.CounterVec
	QueueDepth        *prometheus.GaugeVec
	ActionsApplied    *prometheus.CounterVec
	DesyncsDetected   prometheus.Counter
	LedgerFailures    *prometheus.CounterVec
}

// NewMetrics builds the metric set on its own registry so tests can
// instantiate servers without double-registration panics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "reemteam_connections_active",
			Help: "Currently open websocket connections.",
		}),
		HandsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reemteam_hands_started_total",
			Help: "Hands dealt, by stake.",
		}, []string{"stake"}),
		HandsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reemteam_hands_completed_total",
			Help: "Hands settled, by win type.",
		}, []string{"win_type"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reemteam_queue_depth",
			Help: "Players waiting in the matchmaking queue, by stake.",
		}, []string{"stake"}),
		ActionsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reemteam_actions_applied_total",
			Help: "Game actions accepted by the rules engine, by kind.",
		}, []string{"kind"}),
		DesyncsDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "reemteam_desyncs_detected_total",
			Help: "Client state hashes that disagreed with the server.",
		}),
		LedgerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reemteam_ledger_failures_total",
			Help: "Ledger batches that failed, by operation.",
		}, []string{"op"}),
	}
}
