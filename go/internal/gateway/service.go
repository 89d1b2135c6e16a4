package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/classroom"
)

// Service is the classroom gateway: WebSocket transport and state endpoints in
// front of the coordinator.
type Service struct {
	coordinator       *classroom.Coordinator
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new gateway service
func NewService(config Config, coordinator *classroom.Coordinator) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, coordinator)

	return &Service{
		coordinator:       coordinator,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, coordinator),
		stateHandler:      NewStateHandler(coordinator),
	}
}

// Start runs the idle-session reaper until ctx is cancelled, then stops the service
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting classroom gateway service")

	s.coordinator.Run(ctx)

	log.Info().Msg("classroom gateway service shutting down")
	return s.Stop()
}

// Stop closes every connection and caption stream
func (s *Service) Stop() error {
	s.connectionManager.CloseAll()
	s.coordinator.Close()
	log.Info().Msg("classroom gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("classroom gateway routes registered")
}
