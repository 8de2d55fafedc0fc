package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
	"github.com/ternarybob/agentstatus/internal/services/events"
)

type snapshotMessage struct {
	Type    string         `json:"type"`
	Payload SnapshotUpdate `json:"payload"`
}

func dialStatusStream(t *testing.T, handler *WebSocketHandler) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) snapshotMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg snapshotMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStatusStreamSendsCurrentAndPublishedSnapshots(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	defer bus.Close()

	handler := NewWebSocketHandler(&fakeService{snap: testSnapshot()}, bus, arbor.NewLogger())
	conn := dialStatusStream(t, handler)

	msg := readSnapshot(t, conn)
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, "cycle-1", msg.Payload.CycleID)
	require.Len(t, msg.Payload.Agents, 1)
	assert.Equal(t, "TEST", msg.Payload.Agents[0].Name)
	assert.Equal(t, models.StateRunning, msg.Payload.Agents[0].State)
	assert.Equal(t, []string{"folder/nightly"}, msg.Payload.StaleJobs)

	next := models.NewSnapshot(generatedAt.Add(time.Minute), "cycle-2", []models.AgentStatus{
		{Name: "TEST", State: models.StateFailed, LastError: "Export failed"},
	}, nil)
	require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventSnapshotPublished,
		Payload: next,
	}))

	msg = readSnapshot(t, conn)
	assert.Equal(t, "cycle-2", msg.Payload.CycleID)
	assert.True(t, msg.Payload.GeneratedAt.Equal(generatedAt.Add(time.Minute)))
	require.Len(t, msg.Payload.Agents, 1)
	assert.Equal(t, models.StateFailed, msg.Payload.Agents[0].State)
	assert.Equal(t, "Export failed", msg.Payload.Agents[0].LastError)
	assert.Empty(t, msg.Payload.StaleJobs)
}

func TestStatusStreamBeforeFirstRefresh(t *testing.T) {
	handler := NewWebSocketHandler(&fakeService{}, nil, arbor.NewLogger())
	conn := dialStatusStream(t, handler)

	assert.Eventually(t, func() bool { return handler.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	// Nothing was published yet, so the first message is the broadcast
	handler.BroadcastSnapshot(testSnapshot())
	msg := readSnapshot(t, conn)
	assert.Equal(t, "cycle-1", msg.Payload.CycleID)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return handler.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestStatusStreamRejectsForeignPayload(t *testing.T) {
	handler := NewWebSocketHandler(&fakeService{}, nil, arbor.NewLogger())

	err := handler.handleSnapshotPublished(context.Background(), interfaces.Event{
		Type:    interfaces.EventSnapshotPublished,
		Payload: "not a snapshot",
	})
	assert.Error(t, err)
}

func TestStatusStreamCloseDisconnectsClients(t *testing.T) {
	handler := NewWebSocketHandler(&fakeService{}, nil, arbor.NewLogger())
	conn := dialStatusStream(t, handler)
	assert.Eventually(t, func() bool { return handler.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	handler.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
