package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"support-dashboard/internal/models"
	"support-dashboard/internal/observability"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSendBuffer    = errors.New("session send buffer full")
)

// Session is one connected client regardless of transport. Send must never
// block the caller.
type Session interface {
	ID() string
	Info() ConnInfo
	Send(event models.Event) error
	Close() error
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// wsSession queues outbound frames for a single write pump.
type wsSession struct {
	conn *websocket.Conn
	info ConnInfo
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSSession(conn *websocket.Conn, info ConnInfo, buffer int) *wsSession {
	return &wsSession{
		conn: conn,
		info: info,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (s *wsSession) ID() string     { return s.info.ConnID }
func (s *wsSession) Info() ConnInfo { return s.info }

func (s *wsSession) Send(event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- payload:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		observability.IncSessionDrop()
		return ErrSendBuffer
	}
}

func (s *wsSession) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	return nil
}

// writePump drains the send queue until the session closes, then closes the
// connection so the read loop unblocks.
func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			s.flush()
			_ = s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}

// flush writes whatever is already queued so a final nack still arrives.
func (s *wsSession) flush() {
	for {
		select {
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}
