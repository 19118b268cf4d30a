package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collabform", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collabform", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	FieldUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collabform", Name: "field_updates_total", Help: "Durable field updates by outcome (persisted, rejected, not_found, error)."},
		[]string{"outcome"},
	)
	BroadcastsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collabform", Name: "realtime_broadcasts_delivered_total", Help: "Realtime events queued to a peer connection, by event kind."},
		[]string{"event"},
	)
	BroadcastsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collabform", Name: "realtime_broadcasts_dropped_total", Help: "Realtime events dropped because a peer send queue was full, by event kind."},
		[]string{"event"},
	)
	PresenceConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collabform", Name: "presence_connections", Help: "Connections currently registered in at least one room."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(FieldUpdates)
	reg.MustRegister(BroadcastsDelivered)
	reg.MustRegister(BroadcastsDropped)
	reg.MustRegister(PresenceConnections)
}
