package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/events"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/room"
)

// CommandHandler consumes decoded client traffic
type CommandHandler interface {
	Handle(ctx context.Context, m room.Member, cmd events.Command) error
	PushAudio(m room.Member, chunk []byte) bool
	Disconnect(m room.Member)
}

// ConnectionManager upgrades WebSocket connections and runs their pumps
type ConnectionManager struct {
	connections map[*Connection]struct{}
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  CommandHandler
}

// Connection is one client socket. It is a room member.
type Connection struct {
	id      string
	token   string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	manager *ConnectionManager

	closeOnce   sync.Once
	connectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	AllowedOrigins  []string
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024, // audio chunks arrive as binary frames
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		SendBufferSize:  256,
		AllowedOrigins:  []string{"*"},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, handler CommandHandler) *ConnectionManager {
	defaults := DefaultConnectionConfig()
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = defaults.SendBufferSize
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.PingInterval <= 0 || config.PingInterval >= config.ReadTimeout {
		config.PingInterval = config.ReadTimeout * 9 / 10
	}
	return &ConnectionManager{
		connections: make(map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     originChecker(config.AllowedOrigins),
		},
		config:  config,
		handler: handler,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. The token, when
// present, is checked against the session code on join.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, token string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		id:          uuid.New().String(),
		token:       token,
		conn:        conn,
		send:        make(chan []byte, cm.config.SendBufferSize),
		done:        make(chan struct{}),
		manager:     cm,
		connectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.id).
		Str("remote_addr", r.RemoteAddr).
		Bool("has_token", token != "").
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = struct{}{}
	gaugeConnections.Inc()

	log.Debug().
		Str("connection_id", conn.id).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.connections[conn]; !ok {
		return
	}
	delete(cm.connections, conn)
	gaugeConnections.Dec()

	log.Info().
		Str("connection_id", conn.id).
		Dur("connected_for", time.Since(conn.connectedAt)).
		Msg("connection unregistered")
}

// Count returns the number of open connections
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// CloseAll closes every open connection
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
	log.Info().Int("connections", len(conns)).Msg("closed all connections")
}

// ID returns the connection id
func (c *Connection) ID() string {
	return c.id
}

// Token returns the presenter token supplied on upgrade
func (c *Connection) Token() string {
	return c.token
}

// Send queues a message without blocking. It reports false when the buffer is
// full or the connection is closed.
func (c *Connection) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the connection after queued messages are flushed
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("failed to write message to WebSocket")
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("failed to send ping")
				c.Close()
				return
			}
		}
	}
}

// flush writes whatever is still queued so a final sessionError reaches the client
func (c *Connection) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close()
		c.manager.handler.Disconnect(c)
		c.manager.unregisterConnection(c)
	}()

	c.conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			metricMessages.WithLabelValues("text").Inc()
			c.handleClientMessage(ctx, message)
		case websocket.BinaryMessage:
			metricMessages.WithLabelValues("binary").Inc()
			c.manager.handler.PushAudio(c, message)
		}
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes one JSON envelope and hands it to the coordinator
func (c *Connection) handleClientMessage(ctx context.Context, message []byte) {
	defer func() {
		if r := recover(); r != nil {
			metricRecoveredPanics.Inc()
			log.Error().
				Interface("panic", r).
				Str("connection_id", c.id).
				Bytes("stack", debug.Stack()).
				Msg("recovered panic in command handler")
		}
	}()

	cmd, err := events.ParseCommand(message)
	if err != nil {
		metricRejectedMessages.WithLabelValues(rejectReason(err)).Inc()
		log.Warn().
			Err(err).
			Str("connection_id", c.id).
			Msg("dropping undecodable client message")
		return
	}

	if err := c.manager.handler.Handle(ctx, c, cmd); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.id).
			Str("command", string(cmd.Type())).
			Msg("command not applied")
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, events.ErrUnknownCommand):
		return "unknown_type"
	case errors.Is(err, events.ErrMalformedPayload):
		return "bad_payload"
	default:
		return "bad_envelope"
	}
}
