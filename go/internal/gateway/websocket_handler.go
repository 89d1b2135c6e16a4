package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/room"
)

// StatsProvider reports room membership
type StatsProvider interface {
	RoomStats() room.Stats
}

// WebSocketHandler handles WebSocket upgrade requests
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	stats             StatsProvider
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, stats StatsProvider) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		stats:             stats,
	}
}

type connectionStats struct {
	TotalConnections int `json:"total_connections"`
	room.Stats
}

// HandleConnection upgrades GET /ws. Sessions are joined with a joinSession
// message; the optional token query carries presenter rights.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if err := h.connectionManager.UpgradeConnection(w, r, token); err != nil {
		// the upgrader has already written an HTTP error
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := connectionStats{
		TotalConnections: h.connectionManager.Count(),
		Stats:            h.stats.RoomStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.HandleConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
