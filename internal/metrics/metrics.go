// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Room close reasons used as the "reason" label.
const (
	ReasonIdle     = "idle"
	ReasonClose    = "close"
	ReasonShutdown = "shutdown"
	ReasonAborted  = "aborted"
)

var (
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_rooms_active",
		Help: "Rooms currently registered and joinable.",
	})

	RoomsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_rooms_closed_total",
		Help: "Rooms terminated, by reason.",
	}, []string{"reason"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_sessions_active",
		Help: "Sessions currently held by the session registry.",
	})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_active",
		Help: "Open WebSocket connections attached to a room.",
	})

	MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Send commands fanned out by room actors.",
	})

	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_broadcast_dropped_total",
		Help: "Envelopes discarded for lagging subscribers.",
	})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_persist_failures_total",
		Help: "Message inserts that returned an error.",
	})

	PersistDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_persist_dropped_total",
		Help: "Messages dropped because the persistence queue was full.",
	})
)
