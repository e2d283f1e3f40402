package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"support-dashboard/internal/logger"
	"support-dashboard/internal/models"
	"support-dashboard/internal/observability"
)

// SessionConfig bounds per-session resources.
type SessionConfig struct {
	IntentRate  float64
	IntentBurst int
	SendBuffer  int
}

// WebSocketHandler serves the JSON envelope protocol on /ws.
type WebSocketHandler struct {
	dispatcher *Dispatcher
	cfg        SessionConfig
}

// NewWebSocketHandler constructs a WebSocketHandler.
func NewWebSocketHandler(dispatcher *Dispatcher, cfg SessionConfig) *WebSocketHandler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &WebSocketHandler{dispatcher: dispatcher, cfg: cfg}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the session.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("support-dashboard/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request.WithContext(ctx), nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	traceID := span.SpanContext().TraceID().String()
	meta := observability.ClientMetaFrom(c.Request.Header, c.Request.RemoteAddr)
	info := ConnInfo{
		ConnID:      newConnID(),
		Kind:        KindWebSocket,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}

	// The request context ends with this handler; the session outlives it.
	sessionCtx := context.WithoutCancel(ctx)
	session := newWSSession(conn, info, h.cfg.SendBuffer)
	go session.writePump()

	if err := h.dispatcher.Join(sessionCtx, session); err != nil {
		logger.Warn().Err(err).Str("conn_id", info.ConnID).Msg("join refused")
		_ = session.Close()
		return
	}

	observability.IncWSActive(KindWebSocket)
	observability.IncWSEvent(KindWebSocket, "ws_connect")
	_ = observability.PublishEvent(sessionCtx, sessionRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   sessionPayload(info, "ws_connect", ""),
	}, observability.BuildHeaders(meta.RequestID, traceID))

	go h.readLoop(sessionCtx, conn, session)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *wsSession) {
	info := session.Info()
	limiter := rate.NewLimiter(rate.Limit(h.cfg.IntentRate), h.cfg.IntentBurst)

	var closeReason string
	defer func() {
		_ = session.Close()
		h.dispatcher.Leave(info.ConnID)
		observability.DecWSActive(KindWebSocket)
		observability.IncWSEvent(KindWebSocket, "ws_disconnect")
		_ = observability.PublishEvent(ctx, sessionRoutingKey, observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload:   sessionPayload(info, "ws_disconnect", closeReason),
		}, observability.BuildHeaders(info.RequestID, info.TraceID))
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent(KindWebSocket, "ws_error")
				_ = observability.PublishEvent(ctx, sessionRoutingKey, observability.EventEnvelope{
					EventType: "ws_events",
					EventName: "ws_error",
					Payload:   sessionPayload(info, "ws_error", closeReason),
				}, observability.BuildHeaders(info.RequestID, info.TraceID))
			}
			return
		}

		var intent models.Intent
		if err := json.Unmarshal(data, &intent); err != nil || intent.Name == "" {
			Reject(session, intent.Name, CodeValidation, "malformed envelope")
			continue
		}
		if !limiter.Allow() {
			Reject(session, intent.Name, CodeRateLimited, "too many intents")
			continue
		}
		if err := h.dispatcher.Submit(ctx, info.ConnID, intent); err != nil {
			closeReason = err.Error()
			return
		}
	}
}
