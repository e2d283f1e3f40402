package ws

import (
	"time"

	"github.com/google/uuid"
)

// Transport kinds, also used as metric and event labels.
const (
	KindWebSocket = "websocket"
	KindSocketIO  = "socketio"
)

type ConnInfo struct {
	ConnID      string
	Kind        string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnID() string {
	return uuid.NewString()
}
