package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"golang.org/x/time/rate"

	"support-dashboard/internal/logger"
	"support-dashboard/internal/models"
	"support-dashboard/internal/observability"
)

// Legacy Socket.IO clients speak camelCase event names.
var (
	socketIOIntents = map[string]string{
		"sendMessage":                  models.IntentSendMessage,
		"uploadFile":                   models.IntentUploadFile,
		"editMessage":                  models.IntentEditMessage,
		"deleteMessage":                models.IntentDeleteMessage,
		"typing":                       models.IntentTyping,
		"stopTyping":                   models.IntentStopTyping,
		"sendMoney":                    models.IntentSendMoney,
		"requestPayment":               models.IntentRequestPayment,
		"addP2PTransaction":            models.IntentAddTransaction,
		"requestP2PTransactionHistory": models.IntentRequestTransaction,
	}
	socketIOEvents = map[string]string{
		models.EventChatHistory:        "chatHistory",
		models.EventMessage:            "message",
		models.EventMessageEdited:      "messageEdited",
		models.EventMessageDeleted:     "messageDeleted",
		models.EventUserTyping:         "userTyping",
		models.EventUserStoppedTyping:  "userStoppedTyping",
		models.EventMoneySent:          "moneySent",
		models.EventPaymentRequested:   "paymentRequested",
		models.EventNewTransaction:     "newP2PTransaction",
		models.EventTransactionHistory: "p2pTransactionHistory",
		models.EventIntentRejected:     "intentRejected",
	}
)

func socketIOEventName(event string) string {
	if alias, ok := socketIOEvents[event]; ok {
		return alias
	}
	return event
}

type emitter interface {
	Emit(eventName string, v ...interface{})
	Close() error
}

// ioSession decouples the dispatcher from socket.io's blocking Emit.
type ioSession struct {
	conn    emitter
	info    ConnInfo
	limiter *rate.Limiter
	send    chan models.Event
	done    chan struct{}
	once    sync.Once
}

func newIOSession(conn emitter, info ConnInfo, cfg SessionConfig) *ioSession {
	return &ioSession{
		conn:    conn,
		info:    info,
		limiter: rate.NewLimiter(rate.Limit(cfg.IntentRate), cfg.IntentBurst),
		send:    make(chan models.Event, cfg.SendBuffer),
		done:    make(chan struct{}),
	}
}

func (s *ioSession) ID() string     { return s.info.ConnID }
func (s *ioSession) Info() ConnInfo { return s.info }

func (s *ioSession) Send(event models.Event) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- event:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		observability.IncSessionDrop()
		return ErrSendBuffer
	}
}

func (s *ioSession) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *ioSession) pump() {
	for {
		select {
		case event := <-s.send:
			s.conn.Emit(socketIOEventName(event.Name), event.Args...)
		case <-s.done:
			for {
				select {
				case event := <-s.send:
					s.conn.Emit(socketIOEventName(event.Name), event.Args...)
				default:
					_ = s.conn.Close()
					return
				}
			}
		}
	}
}

// SocketIOServer adapts socket.io connections to dispatcher sessions.
type SocketIOServer struct {
	server     *socketio.Server
	dispatcher *Dispatcher
	cfg        SessionConfig

	mu       sync.Mutex
	sessions map[string]*ioSession
}

func NewSocketIOServer(dispatcher *Dispatcher, cfg SessionConfig) *SocketIOServer {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	server := socketio.NewServer(&engineio.Options{
		// Clients open on polling and are offered the transports listed after it.
		Transports: []transport.Transport{
			&polling.Transport{
				CheckOrigin: func(r *http.Request) bool { return true },
			},
			&websocket.Transport{
				CheckOrigin: func(r *http.Request) bool { return true },
			},
		},
	})

	s := &SocketIOServer{
		server:     server,
		dispatcher: dispatcher,
		cfg:        cfg,
		sessions:   make(map[string]*ioSession),
	}

	server.OnConnect("/", s.onConnect)
	for alias, intent := range socketIOIntents {
		intent := intent
		if intent == models.IntentRequestTransaction {
			server.OnEvent("/", alias, func(c socketio.Conn) {
				s.submit(c, intent, nil)
			})
			continue
		}
		server.OnEvent("/", alias, func(c socketio.Conn, data json.RawMessage) {
			s.submit(c, intent, data)
		})
	}
	server.OnDisconnect("/", s.onDisconnect)
	server.OnError("/", func(c socketio.Conn, err error) {
		if c == nil {
			logger.Warn().Err(err).Msg("socket.io error")
			return
		}
		logger.Warn().Err(err).Str("socket_id", c.ID()).Msg("socket.io error")
	})
	return s
}

// Serve runs the socket.io event loop; it blocks until Close.
func (s *SocketIOServer) Serve() error {
	return s.server.Serve()
}

func (s *SocketIOServer) Close() error {
	return s.server.Close()
}

// Handler wraps the socket.io server for gin.
func (s *SocketIOServer) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.server.ServeHTTP(c.Writer, c.Request)
	}
}

func (s *SocketIOServer) onConnect(c socketio.Conn) error {
	var remoteAddr string
	if addr := c.RemoteAddr(); addr != nil {
		remoteAddr = addr.String()
	}
	meta := observability.ClientMetaFrom(c.RemoteHeader(), remoteAddr)
	info := ConnInfo{
		ConnID:      newConnID(),
		Kind:        KindSocketIO,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		ConnectedAt: time.Now(),
	}

	session := newIOSession(c, info, s.cfg)
	go session.pump()

	s.mu.Lock()
	s.sessions[c.ID()] = session
	s.mu.Unlock()

	if err := s.dispatcher.Join(context.Background(), session); err != nil {
		s.forget(c.ID())
		_ = session.Close()
		return err
	}

	observability.IncWSActive(KindSocketIO)
	observability.IncWSEvent(KindSocketIO, "ws_connect")
	_ = observability.PublishEvent(context.Background(), sessionRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   sessionPayload(info, "ws_connect", ""),
	}, observability.BuildHeaders(info.RequestID, ""))
	return nil
}

func (s *SocketIOServer) submit(c socketio.Conn, intent string, data json.RawMessage) {
	session, ok := s.lookup(c.ID())
	if !ok {
		return
	}
	if !session.limiter.Allow() {
		Reject(session, intent, CodeRateLimited, "too many intents")
		return
	}
	if err := s.dispatcher.Submit(context.Background(), session.ID(), models.Intent{Name: intent, Data: data}); err != nil {
		logger.Warn().Err(err).Str("conn_id", session.ID()).Msg("intent not queued")
	}
}

func (s *SocketIOServer) onDisconnect(c socketio.Conn, reason string) {
	session, ok := s.forget(c.ID())
	if !ok {
		return
	}
	_ = session.Close()
	s.dispatcher.Leave(session.ID())

	observability.DecWSActive(KindSocketIO)
	observability.IncWSEvent(KindSocketIO, "ws_disconnect")
	_ = observability.PublishEvent(context.Background(), sessionRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_disconnect",
		Payload:   sessionPayload(session.Info(), "ws_disconnect", reason),
	}, observability.BuildHeaders(session.Info().RequestID, ""))
}

func (s *SocketIOServer) lookup(socketID string) (*ioSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[socketID]
	return session, ok
}

func (s *SocketIOServer) forget(socketID string) (*ioSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[socketID]
	delete(s.sessions, socketID)
	return session, ok
}
