package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/activity"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/auth"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/captions"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/classroom"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/config"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/gateway"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/sessions"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/timer"
)

type Services struct {
	Gateway  *gateway.Service
	Sessions *sessions.Handler

	pool *pgxpool.Pool
	nats *activity.NATSPublisher
}

func setupServices(ctx context.Context, c *config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Store → App → Handler, Recognizer/Translator/Publisher → Coordinator → Gateway
	services := &Services{}
	clock := clockwork.NewRealClock()

	// Session codes
	var store sessions.Store
	if c.Database.Enabled {
		pool, err := setupDatabase(ctx, c.Database)
		if err != nil {
			return nil, err
		}
		services.pool = pool

		pgStore := sessions.NewPostgresStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			services.Close(ctx)
			return nil, fmt.Errorf("failed to ensure session schema: %w", err)
		}
		store = pgStore
	} else {
		log.Warn().Msg("database disabled, session codes kept in memory")
		store = sessions.NewMemoryStore(clock)
	}

	issuer := auth.NewIssuer(c.Auth.TokenSecret, c.Auth.TokenTTL, clock)
	sessionsApp := sessions.NewApp(store, issuer)
	services.Sessions = sessions.NewHandler(sessionsApp)

	// Activity stream
	var publisher activity.Publisher = activity.NewLogPublisher()
	if c.NATS.Enabled {
		natsConfig := activity.DefaultNATSConfig()
		natsConfig.URL = c.NATS.URL
		natsConfig.StreamName = c.NATS.Stream
		natsConfig.SubjectPrefix = c.NATS.SubjectPrefix
		if c.NATS.MaxAge > 0 {
			natsConfig.MaxAge = c.NATS.MaxAge
		}
		natsPublisher, err := activity.NewNATSPublisher(ctx, natsConfig)
		if err != nil {
			services.Close(ctx)
			return nil, err
		}
		services.nats = natsPublisher
		publisher = natsPublisher
	}

	// Captions
	var recognizer captions.Recognizer
	if c.Deepgram.APIKey != "" {
		dgConfig := captions.DefaultDeepgramConfig()
		dgConfig.APIKey = c.Deepgram.APIKey
		if c.Deepgram.BaseURL != "" {
			dgConfig.BaseURL = c.Deepgram.BaseURL
		}
		dgConfig.Model = c.Deepgram.Model
		recognizer = captions.NewDeepgramRecognizer(dgConfig)
	} else {
		log.Warn().Msg("DEEPGRAM_API_KEY not set, live captions disabled")
	}

	var translator captions.Translator
	if c.Translate.APIKey != "" {
		translator = captions.NewGoogleTranslator(captions.GoogleTranslateConfig{
			APIKey:  c.Translate.APIKey,
			BaseURL: c.Translate.BaseURL,
			Timeout: c.Translate.Timeout,
		})
	} else {
		log.Warn().Msg("GOOGLE_TRANSLATE_API_KEY not set, translation disabled")
	}

	// Coordinator
	coordinatorConfig := classroom.DefaultConfig()
	coordinatorConfig.IdleTTL = c.Sessions.IdleTTL
	coordinatorConfig.ReapInterval = c.Sessions.ReapInterval
	coordinatorConfig.RequireKnownCode = c.Sessions.RequireKnownCode
	coordinatorConfig.Timer = timer.Config{TickInterval: c.Timer.TickInterval}
	if c.Translate.Timeout > 0 {
		coordinatorConfig.Captions.TranslateTimeout = c.Translate.Timeout
	}
	coordinatorConfig.Captions.MaxTranslations = c.Translate.MaxInFlight

	coordinator := classroom.New(classroom.Deps{
		Clock:      clock,
		Recognizer: recognizer,
		Translator: translator,
		Publisher:  activity.NewMetricPublisher(publisher),
		Authorizer: gateway.NewTokenAuthorizer(issuer),
		Codes:      sessionsApp,
	}, coordinatorConfig)

	// Gateway
	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.ConnectionConfig.PingInterval = c.WebSocket.PingInterval
	gatewayConfig.ConnectionConfig.ReadTimeout = c.WebSocket.ReadTimeout
	gatewayConfig.ConnectionConfig.WriteTimeout = c.WebSocket.WriteTimeout
	gatewayConfig.ConnectionConfig.MaxMessageSize = c.WebSocket.MaxMessageSize
	gatewayConfig.ConnectionConfig.SendBufferSize = c.WebSocket.SendBuffer
	gatewayConfig.ConnectionConfig.AllowedOrigins = c.Server.AllowedOrigins
	services.Gateway = gateway.NewService(gatewayConfig, coordinator)

	return services, nil
}

// Close releases external connections
func (s *Services) Close(ctx context.Context) {
	if s.nats != nil {
		if err := s.nats.Close(ctx); err != nil {
			log.Error().Err(err).Msg("failed to close activity publisher")
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
