// Package metrics provides Prometheus instrumentation for the messaging
// service. It exposes gauges for connection and presence counts, counters for
// message throughput, and histograms for broadcast latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skilltrack_dm_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineUsers tracks the number of distinct users with at least one
	// live connection.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skilltrack_dm_online_users",
		Help: "Current number of distinct online users",
	})

	// MessagesTotal counts message mutations, labeled by action: "sent",
	// "edited", "deleted", "read", or "blocked".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skilltrack_dm_messages_total",
		Help: "Total number of message mutations processed",
	}, []string{"action"})

	// BroadcastLatency records persist-to-fanout latency in seconds.
	BroadcastLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "skilltrack_dm_broadcast_latency_seconds",
		Help:    "Message broadcast latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// NotificationsTotal counts lightweight notifications delivered to
	// online-but-not-joined receivers.
	NotificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skilltrack_dm_notifications_total",
		Help: "Total number of message notifications delivered",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		MessagesTotal,
		BroadcastLatency,
		NotificationsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
