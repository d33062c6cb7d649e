// Package metrics holds the prometheus collectors shared by the feed client
// and the gateway. Everything is registered on the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// MessagesApplied counts incremental applies by outcome
	// (inserted, confirmed, discarded).
	MessagesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedsync",
			Subsystem: "feed",
			Name:      "messages_applied_total",
			Help:      "Incremental message applies by reconciliation outcome.",
		},
		[]string{"outcome"},
	)

	HistoryApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "feedsync",
			Subsystem: "feed",
			Name:      "history_applied_total",
			Help:      "History snapshots applied in bulk.",
		},
	)

	HistoryRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "feedsync",
			Subsystem: "feed",
			Name:      "history_requests_total",
			Help:      "Explicit history requests issued after the history timeout.",
		},
	)

	Sessions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "feedsync",
			Subsystem: "feed",
			Name:      "sessions_total",
			Help:      "Connection sessions started.",
		},
	)

	GatewayClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "feedsync",
			Subsystem: "gateway",
			Name:      "clients",
			Help:      "Websocket clients currently registered with the hub.",
		},
	)

	GatewayMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedsync",
			Subsystem: "gateway",
			Name:      "messages_total",
			Help:      "Messages handled by the gateway by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(MessagesApplied)
	prometheus.MustRegister(HistoryApplied)
	prometheus.MustRegister(HistoryRequests)
	prometheus.MustRegister(Sessions)
	prometheus.MustRegister(GatewayClients)
	prometheus.MustRegister(GatewayMessages)
}
