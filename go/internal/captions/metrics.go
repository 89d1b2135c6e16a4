package captions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gaugeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "captions_streams_active",
		Help: "Open recognition streams",
	})

	metricDroppedChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captions_dropped_chunks_total",
		Help: "Audio chunks dropped because no stream could take them",
	})

	metricAudioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captions_audio_bytes_total",
		Help: "Audio bytes forwarded to recognition streams",
	})

	metricCaptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captions_emitted_total",
		Help: "Caption events broadcast by kind",
	}, []string{"kind"})

	metricRecognitionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captions_recognition_errors_total",
		Help: "Recognition streams that failed to open or ended with an error",
	})

	metricTranslationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captions_translation_errors_total",
		Help: "Failed translation requests",
	})

	metricTranslationsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captions_translations_rejected_total",
		Help: "Translation requests refused because the connection had too many in flight",
	})

	metricTranslationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "captions_translation_latency_ms",
		Help:    "Translation request latency (ms)",
		Buckets: prometheus.ExponentialBuckets(25, 1.8, 10),
	})
)

var metricRecognizerConnectMS = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "captions_recognizer_connect_ms",
	Help:    "Time to establish the recognition socket (ms)",
	Buckets: prometheus.ExponentialBuckets(10, 1.8, 10),
})
