// Package metrics exposes the coordinator's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roomchat",
		Name:      "sessions_online",
		Help:      "Live sessions currently registered.",
	})

	ConnectionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "roomchat",
		Name:      "connections_rejected_total",
		Help:      "Connection attempts refused by the identity verifier.",
	})

	MessagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomchat",
		Name:      "messages_appended_total",
		Help:      "Messages appended to room history.",
	}, []string{"room", "kind"})

	EventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomchat",
		Name:      "events_handled_total",
		Help:      "Inbound client events by type and outcome.",
	}, []string{"type", "outcome"})

	DeliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "roomchat",
		Name:      "deliveries_dropped_total",
		Help:      "Outbound events dropped because a session was gone or its queue was full.",
	})

	MirrorDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "roomchat",
		Name:      "mirror_dropped_total",
		Help:      "Events not mirrored to Redis because the publish queue was full.",
	})
)
