package classroom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gaugeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classroom_sessions_tracked",
		Help: "Sessions with live state in this process",
	})

	metricJoins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_joins_total",
		Help: "Successful session joins by role",
	}, []string{"role"})

	metricViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_protocol_violations_total",
		Help: "Rejected client messages by command",
	}, []string{"command"})

	metricEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classroom_sessions_evicted_total",
		Help: "Idle sessions evicted by the reaper",
	})
)
