package timer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gaugeLoops = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classroom_timer_loops_active",
		Help: "Countdown loops currently running",
	})

	metricStaleTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classroom_timer_stale_ticks_total",
		Help: "Ticks discarded because their loop was superseded",
	})
)
