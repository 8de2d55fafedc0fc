package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Dashboards are served from other origins
	},
}

// WSMessage is the envelope of every message pushed to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotUpdate summarises a published snapshot. Clients fetch details
// from the REST routes.
type SnapshotUpdate struct {
	GeneratedAt time.Time      `json:"generated_at"`
	CycleID     string         `json:"cycle_id"`
	Agents      []AgentSummary `json:"agents"`
	StaleJobs   []string       `json:"stale_jobs"`
}

type AgentSummary struct {
	Name      string       `json:"name"`
	State     models.State `json:"state"`
	LastSeen  time.Time    `json:"last_seen,omitempty"`
	LastError string       `json:"last_error,omitempty"`
}

func newSnapshotUpdate(snap *models.AggregateSnapshot) SnapshotUpdate {
	update := SnapshotUpdate{
		GeneratedAt: snap.GeneratedAt,
		CycleID:     snap.CycleID,
		Agents:      []AgentSummary{},
		StaleJobs:   []string{},
	}
	for _, agent := range snap.Agents() {
		update.Agents = append(update.Agents, AgentSummary{
			Name:      agent.Name,
			State:     agent.State,
			LastSeen:  agent.LastSeen,
			LastError: agent.LastError,
		})
	}
	for _, job := range snap.Jobs() {
		if job.Stale {
			update.StaleJobs = append(update.StaleJobs, job.JobName)
		}
	}
	return update
}

// WebSocketHandler pushes a summary of every published snapshot to
// connected clients
type WebSocketHandler struct {
	service     StatusService
	logger      arbor.ILogger
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex
	mu          sync.RWMutex
}

// NewWebSocketHandler creates a handler subscribed to snapshot events
func NewWebSocketHandler(service StatusService, events interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		service:     service,
		logger:      logger,
		clients:     make(map[*websocket.Conn]bool),
		clientMutex: make(map[*websocket.Conn]*sync.Mutex),
	}

	if events != nil {
		if err := events.Subscribe(interfaces.EventSnapshotPublished, h.handleSnapshotPublished); err != nil {
			logger.Warn().Err(err).Msg("Failed to subscribe to snapshot events")
		}
	}

	return h
}

func (h *WebSocketHandler) handleSnapshotPublished(ctx context.Context, event interfaces.Event) error {
	snap, ok := event.Payload.(*models.AggregateSnapshot)
	if !ok {
		return fmt.Errorf("unexpected snapshot payload %T", event.Payload)
	}
	h.BroadcastSnapshot(snap)
	return nil
}

// HandleWebSocket handles GET /ws. The current snapshot, if any, is sent
// right after the upgrade.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = mutex
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	if snap, err := h.service.Snapshot(); err == nil {
		if data, err := json.Marshal(WSMessage{Type: "snapshot", Payload: newSnapshotUpdate(snap)}); err == nil {
			h.send(conn, mutex, data)
		}
	}

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	// Clients only listen; reading detects the disconnect
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// BroadcastSnapshot sends the snapshot summary to all connected clients
func (h *WebSocketHandler) BroadcastSnapshot(snap *models.AggregateSnapshot) {
	data, err := json.Marshal(WSMessage{Type: "snapshot", Payload: newSnapshotUpdate(snap)})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal snapshot message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		h.send(conn, mutexes[i], data)
	}

	h.logger.Trace().
		Str("cycle_id", snap.CycleID).
		Int("clients", len(clients)).
		Msg("Snapshot broadcast")
}

func (h *WebSocketHandler) send(conn *websocket.Conn, mutex *sync.Mutex, data []byte) {
	mutex.Lock()
	err := conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send snapshot to client")
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients. Server shutdown does not close hijacked
// connections.
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, mutex := range h.clientMutex {
		mutex.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		mutex.Unlock()
		conn.Close()
	}
}
