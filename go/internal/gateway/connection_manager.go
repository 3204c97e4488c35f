package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/dynasty-projections/go/internal/events"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages WebSocket connections watching scenarios
type ConnectionManager struct {
	// Connection pools organized by scenario ID
	scenarioConnections map[uuid.UUID]map[*Connection]bool
	mu                  sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket client watching one scenario
type Connection struct {
	ID         string
	ScenarioID uuid.UUID
	// Types limits delivery to these event types. Empty means every type.
	Types   map[string]bool
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	// SendBuffer is the per-connection queue length before a slow client is dropped.
	SendBuffer  int
	CheckOrigin func(r *http.Request) bool
}

// BroadcastMessage is one event queued for the clients of a scenario
type BroadcastMessage struct {
	ScenarioID uuid.UUID
	Event      *events.Envelope
}

// Stats summarises active connections
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveScenarios  int            `json:"active_scenarios"`
	Scenarios        map[string]int `json:"scenario_connections"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	return &ConnectionManager{
		scenarioConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start processes broadcast messages until ctx is done
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and subscribes it to a scenario.
// snapshot, when non-nil, is the first frame the client receives.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, scenarioID uuid.UUID, types []string, snapshot []byte) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		ScenarioID:  scenarioID,
		Types:       make(map[string]bool, len(types)),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
	for _, t := range types {
		connection.Types[t] = true
	}
	if snapshot != nil {
		connection.Send <- snapshot
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("scenario_id", scenarioID.String()).
		Strs("types", types).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.scenarioConnections[conn.ScenarioID] == nil {
		cm.scenarioConnections[conn.ScenarioID] = make(map[*Connection]bool)
	}
	cm.scenarioConnections[conn.ScenarioID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("scenario_id", conn.ScenarioID.String()).
		Int("total_connections", len(cm.scenarioConnections[conn.ScenarioID])).
		Msg("connection registered")
}

// unregisterConnection is safe to call more than once for the same connection.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, ok := cm.scenarioConnections[conn.ScenarioID]
	if !ok {
		return
	}
	if _, ok := connections[conn]; !ok {
		return
	}
	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.scenarioConnections, conn.ScenarioID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("scenario_id", conn.ScenarioID.String()).
		Msg("connection unregistered")
}

// BroadcastToScenario queues an event for every client watching the scenario.
// The event is dropped when the queue is full.
func (cm *ConnectionManager) BroadcastToScenario(scenarioID uuid.UUID, event *events.Envelope) {
	select {
	case cm.broadcastCh <- BroadcastMessage{ScenarioID: scenarioID, Event: event}:
	default:
		log.Warn().Str("scenario_id", scenarioID.String()).Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock so unregisterConnection cannot close Send mid-write.
	var sent int
	var slow []*Connection
	cm.mu.RLock()
	for conn := range cm.scenarioConnections[message.ScenarioID] {
		if len(conn.Types) > 0 && !conn.Types[message.Event.EventType] {
			continue
		}
		select {
		case conn.Send <- data:
			sent++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("scenario_id", conn.ScenarioID.String()).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	// Clients of a deleted scenario get the deletion event, then a close frame.
	if message.Event.EventType == events.ScenarioDeleted {
		cm.CloseScenario(message.ScenarioID)
	}

	log.Debug().
		Str("event_type", message.Event.EventType).
		Str("scenario_id", message.ScenarioID.String()).
		Int("connections", sent).
		Msg("event broadcasted")
}

// CloseScenario disconnects every client of a scenario, used once the scenario is deleted.
func (cm *ConnectionManager) CloseScenario(scenarioID uuid.UUID) {
	cm.mu.RLock()
	var targets []*Connection
	for conn := range cm.scenarioConnections[scenarioID] {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		cm.unregisterConnection(conn)
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var ids []uuid.UUID
	for id := range cm.scenarioConnections {
		ids = append(ids, id)
	}
	cm.mu.RUnlock()

	for _, id := range ids {
		cm.CloseScenario(id)
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := Stats{
		ActiveScenarios: len(cm.scenarioConnections),
		Scenarios:       make(map[string]int, len(cm.scenarioConnections)),
	}
	for id, connections := range cm.scenarioConnections {
		stats.TotalConnections += len(connections)
		stats.Scenarios[id.String()] = len(connections)
	}
	return stats
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump keeps the read deadline alive and drains client frames
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}

		log.Debug().
			Str("connection_id", c.ID).
			Str("scenario_id", c.ScenarioID.String()).
			Int("bytes", len(message)).
			Msg("received client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
