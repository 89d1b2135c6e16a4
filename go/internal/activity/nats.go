package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds configuration for the JetStream activity stream
type NATSConfig struct {
	URL               string
	StreamName        string
	SubjectPrefix     string
	MaxAge            time.Duration
	MaxReconnects     int
	ReconnectWait     time.Duration
	MaxPendingPublish int
}

// DefaultNATSConfig returns default JetStream publisher configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:               nats.DefaultURL,
		StreamName:        "CLASSROOM_ACTIVITY",
		SubjectPrefix:     "classroom.activity",
		MaxAge:            7 * 24 * time.Hour,
		MaxReconnects:     -1, // Infinite
		ReconnectWait:     2 * time.Second,
		MaxPendingPublish: 256,
	}
}

// NATSPublisher publishes activity events to a JetStream stream
type NATSPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config NATSConfig
}

// NewNATSPublisher connects to NATS and ensures the activity stream exists
func NewNATSPublisher(ctx context.Context, config NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("classroom-gateway"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc,
		jetstream.WithPublishAsyncMaxPending(config.MaxPendingPublish),
		jetstream.WithPublishAsyncErrHandler(func(_ jetstream.JetStream, msg *nats.Msg, err error) {
			metricPublishFailures.Inc()
			log.Error().Err(err).Str("subject", msg.Subject).Msg("activity publish failed")
		}),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      config.StreamName,
		Subjects:  []string{config.SubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    config.MaxAge,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", config.StreamName, err)
	}

	log.Info().
		Str("url", config.URL).
		Str("stream", config.StreamName).
		Msg("activity publisher connected")

	return &NATSPublisher{nc: nc, js: js, config: config}, nil
}

// Publish queues the event without waiting for the server ack
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal activity event: %w", err)
	}

	subject := Subject(p.config.SubjectPrefix, event)
	if _, err := p.js.PublishAsync(subject, data, jetstream.WithMsgID(event.ID.String())); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close waits for pending acks, then drains the connection
func (p *NATSPublisher) Close(ctx context.Context) error {
	select {
	case <-p.js.PublishAsyncComplete():
	case <-ctx.Done():
		log.Warn().Int("pending", p.js.PublishAsyncPending()).Msg("closing activity publisher with unacknowledged events")
	}
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
