package activity

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_events_published_total",
		Help: "Activity events handed to the publisher by type and outcome",
	}, []string{"type", "outcome"})

	metricPublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "activity_publish_duration_ms",
		Help:    "Time spent handing an event to the publisher (ms)",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	metricPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "activity_publish_async_failures_total",
		Help: "Asynchronous publishes the server did not acknowledge",
	})
)

// MetricPublisher wraps a Publisher with metrics collection
type MetricPublisher struct {
	publisher Publisher
}

func NewMetricPublisher(publisher Publisher) *MetricPublisher {
	return &MetricPublisher{publisher: publisher}
}

func (p *MetricPublisher) Publish(ctx context.Context, event Event) error {
	start := time.Now()
	err := p.publisher.Publish(ctx, event)
	metricPublishDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metricPublished.WithLabelValues(event.Type, outcome).Inc()
	return err
}
