package room

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gaugeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classroom_rooms_active",
		Help: "Rooms with at least one member",
	})

	metricBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_broadcasts_total",
		Help: "Room broadcasts by event type",
	}, []string{"type"})

	metricDroppedSends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classroom_dropped_sends_total",
		Help: "Members dropped because their send buffer was full",
	})
)
