package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-dashboard/internal/models"
)

type wireEvent struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args"`
}

func newWSServer(t *testing.T, cfg SessionConfig) *httptest.Server {
	t.Helper()
	f := newDispatcherFixture(t)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", NewWebSocketHandler(f.dispatcher, cfg).Handle)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event wireEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func readSnapshots(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	assert.Equal(t, models.EventChatHistory, readEvent(t, conn).Event)
	assert.Equal(t, models.EventTransactionHistory, readEvent(t, conn).Event)
}

func TestWebSocketSendMessageRoundTrip(t *testing.T) {
	srv := newWSServer(t, SessionConfig{IntentRate: 100, IntentBurst: 100, SendBuffer: 16})
	alice := dialWS(t, srv)
	readSnapshots(t, alice)
	bob := dialWS(t, srv)
	readSnapshots(t, bob)

	require.NoError(t, alice.WriteJSON(map[string]any{
		"event": models.IntentSendMessage,
		"data":  map[string]any{"type": "user", "userName": "alice", "content": "hi", "timestamp": "10:00 AM"},
	}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		event := readEvent(t, conn)
		require.Equal(t, models.EventMessage, event.Event)
		require.Len(t, event.Args, 2)

		var msg models.Message
		require.NoError(t, json.Unmarshal(event.Args[0], &msg))
		assert.Equal(t, "hi", msg.Content.Text)
		assert.JSONEq(t, `0`, string(event.Args[1]))
	}
}

func TestWebSocketMalformedEnvelope(t *testing.T) {
	srv := newWSServer(t, SessionConfig{IntentRate: 100, IntentBurst: 100, SendBuffer: 16})
	conn := dialWS(t, srv)
	readSnapshots(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	event := readEvent(t, conn)
	require.Equal(t, models.EventIntentRejected, event.Event)
	var rejected models.IntentRejection
	require.NoError(t, json.Unmarshal(event.Args[0], &rejected))
	assert.Equal(t, CodeValidation, rejected.Code)
}

func TestWebSocketRateLimit(t *testing.T) {
	srv := newWSServer(t, SessionConfig{IntentRate: 0.001, IntentBurst: 1, SendBuffer: 16})
	conn := dialWS(t, srv)
	readSnapshots(t, conn)

	typing := map[string]any{"event": models.IntentTyping, "data": map[string]any{"userName": "alice"}}
	require.NoError(t, conn.WriteJSON(typing))
	require.NoError(t, conn.WriteJSON(typing))

	event := readEvent(t, conn)
	require.Equal(t, models.EventIntentRejected, event.Event)
	var rejected models.IntentRejection
	require.NoError(t, json.Unmarshal(event.Args[0], &rejected))
	assert.Equal(t, CodeRateLimited, rejected.Code)
	assert.Equal(t, models.IntentTyping, rejected.Intent)
}
