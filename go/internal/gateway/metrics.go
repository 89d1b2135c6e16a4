package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gaugeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classroom_connections_active",
		Help: "Open WebSocket connections",
	})

	metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_client_messages_total",
		Help: "Client frames received by frame kind",
	}, []string{"kind"})

	metricRejectedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_client_messages_rejected_total",
		Help: "Client messages that could not be decoded",
	}, []string{"reason"})

	metricRecoveredPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classroom_handler_panics_total",
		Help: "Panics recovered while handling client messages",
	})
)
