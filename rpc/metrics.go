package rpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposed on /metrics, grounded on
// _examples/malbeclabs-doublezero's promauto-registered package-level
// collector vars (telemetry/flow-ingest/internal/metrics/metrics.go).
var (
	rpcCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "themis_rpc_calls_total",
		Help: "Total JSON-RPC calls handled, by method and outcome.",
	}, []string{"method", "status"})

	notifyPushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "themis_rpc_notify_pushes_total",
		Help: "Total notify pushes sent to subscribed WebSocket clients.",
	})

	dispatchLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "themis_rpc_dispatch_latency_seconds",
		Help:    "Time from a parameter change to its notify push reaching the send channel.",
		Buckets: prometheus.DefBuckets,
	})

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "themis_rpc_active_connections",
		Help: "Currently open WebSocket connections.",
	})
)
