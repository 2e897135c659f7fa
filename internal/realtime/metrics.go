package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dm_ws_connections_active",
			Help: "Number of live WebSocket connections on this process",
		},
	)

	eventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dm_events_published_total",
			Help: "Room events published to the broadcast transport",
		},
	)

	eventsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dm_events_delivered_total",
			Help: "Room events delivered to local connections",
		},
	)
)
