package ws

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-dashboard/internal/models"
)

// pollingClient speaks engine.io v3 long-polling with text payloads.
type pollingClient struct {
	t       *testing.T
	http    *http.Client
	base    string
	sid     string
	pending []string
}

type openPacket struct {
	SID      string   `json:"sid"`
	Upgrades []string `json:"upgrades"`
}

func newSocketIOTestServer(t *testing.T) (*dispatcherFixture, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newDispatcherFixture(t)
	sio := NewSocketIOServer(f.dispatcher, SessionConfig{IntentRate: 100, IntentBurst: 100, SendBuffer: 16})
	go func() { _ = sio.Serve() }()

	router := gin.New()
	router.GET("/socket.io/*any", sio.Handler())
	router.POST("/socket.io/*any", sio.Handler())
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.Close()
		_ = sio.Close()
	})
	return f, srv
}

func (c *pollingClient) url() string {
	u := c.base + "/socket.io/?EIO=3&transport=polling&b64=1"
	if c.sid != "" {
		u += "&sid=" + c.sid
	}
	return u
}

func (c *pollingClient) handshake() openPacket {
	c.t.Helper()
	packets := c.poll()
	require.NotEmpty(c.t, packets)
	require.True(c.t, strings.HasPrefix(packets[0], "0"), "first packet %q", packets[0])

	var open openPacket
	require.NoError(c.t, json.Unmarshal([]byte(packets[0][1:]), &open))
	require.NotEmpty(c.t, open.SID)
	c.sid = open.SID
	c.pending = append(c.pending, packets[1:]...)
	return open
}

func (c *pollingClient) poll() []string {
	c.t.Helper()
	var body string
	// The session is registered asynchronously after the handshake response.
	require.Eventually(c.t, func() bool {
		resp, err := c.http.Get(c.url())
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		body = string(data)
		return true
	}, 5*time.Second, 20*time.Millisecond)
	return decodeTextPayload(c.t, body)
}

func (c *pollingClient) send(packet string) {
	c.t.Helper()
	payload := fmt.Sprintf("%d:%s", len(packet), packet)
	resp, err := c.http.Post(c.url(), "text/plain;charset=UTF-8", strings.NewReader(payload))
	require.NoError(c.t, err)
	defer resp.Body.Close()
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
}

// nextEvent returns the next socket.io event frame as [name, args...].
func (c *pollingClient) nextEvent() []json.RawMessage {
	c.t.Helper()
	for {
		for len(c.pending) > 0 {
			packet := c.pending[0]
			c.pending = c.pending[1:]
			if !strings.HasPrefix(packet, "42") {
				continue
			}
			var frame []json.RawMessage
			require.NoError(c.t, json.Unmarshal([]byte(packet[2:]), &frame))
			return frame
		}
		c.pending = c.poll()
	}
}

func decodeTextPayload(t *testing.T, body string) []string {
	t.Helper()
	var packets []string
	for body != "" {
		sep := strings.IndexByte(body, ':')
		require.Positive(t, sep, "malformed payload %q", body)
		n, err := strconv.Atoi(body[:sep])
		require.NoError(t, err)
		body = body[sep+1:]
		require.LessOrEqual(t, n, len(body))
		packets = append(packets, body[:n])
		body = body[n:]
	}
	return packets
}

func eventName(t *testing.T, frame []json.RawMessage) string {
	t.Helper()
	require.NotEmpty(t, frame)
	var name string
	require.NoError(t, json.Unmarshal(frame[0], &name))
	return name
}

func TestSocketIOServerRoundTrip(t *testing.T) {
	f, srv := newSocketIOTestServer(t)
	client := &pollingClient{t: t, http: &http.Client{Timeout: 10 * time.Second}, base: srv.URL}

	open := client.handshake()
	assert.Equal(t, []string{"websocket"}, open.Upgrades)

	history := client.nextEvent()
	require.Equal(t, "chatHistory", eventName(t, history))
	assert.JSONEq(t, "[]", string(history[1]))
	ledger := client.nextEvent()
	require.Equal(t, "p2pTransactionHistory", eventName(t, ledger))
	assert.JSONEq(t, "[]", string(ledger[1]))

	client.send(`42["sendMessage",{"type":"user","userName":"Alice","content":"hi","timestamp":"10:00 AM"}]`)
	message := client.nextEvent()
	require.Equal(t, "message", eventName(t, message))
	require.Len(t, message, 3)
	var msg models.Message
	require.NoError(t, json.Unmarshal(message[1], &msg))
	assert.Equal(t, "Alice", msg.UserName)
	assert.Equal(t, "hi", msg.Content.Text)
	assert.Equal(t, models.StatusSent, msg.Status)
	assert.JSONEq(t, "0", string(message[2]))
	assert.Equal(t, 1, f.messages.Len())

	client.send(`42["requestP2PTransactionHistory"]`)
	reply := client.nextEvent()
	assert.Equal(t, "p2pTransactionHistory", eventName(t, reply))
}

func TestSocketIOServerDisconnectLeavesHub(t *testing.T) {
	f, srv := newSocketIOTestServer(t)
	client := &pollingClient{t: t, http: &http.Client{Timeout: 10 * time.Second}, base: srv.URL}

	client.handshake()
	require.Equal(t, "chatHistory", eventName(t, client.nextEvent()))
	require.Equal(t, "p2pTransactionHistory", eventName(t, client.nextEvent()))
	require.Equal(t, 1, f.hub.Len())

	// engine.io close packet
	client.send("1")
	require.Eventually(t, func() bool { return f.hub.Len() == 0 }, 5*time.Second, 20*time.Millisecond)
}
