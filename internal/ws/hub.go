package ws

import (
	"context"
	"sync"
	"time"

	"support-dashboard/internal/logger"
	"support-dashboard/internal/models"
	"support-dashboard/internal/observability"
)

const sessionRoutingKey = "ws_events.sessions"

// Hub maintains the set of active sessions.
type Hub struct {
	sessions map[string]Session
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]Session)}
}

// Add registers an active session.
func (h *Hub) Add(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID()] = s
}

// Remove drops a session; it reports whether the session was present.
func (h *Hub) Remove(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[id]; !ok {
		return false
	}
	delete(h.sessions, id)
	return true
}

// Get looks up an active session.
func (h *Hub) Get(id string) (Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Len reports the number of active sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast sends event to every active session, the origin included.
func (h *Hub) Broadcast(event models.Event) {
	h.BroadcastExcept(event, "")
}

// BroadcastExcept sends event to every active session but the one with id skip.
func (h *Hub) BroadcastExcept(event models.Event, skip string) {
	observability.IncBroadcast(event.Name)
	for _, s := range h.snapshot() {
		if s.ID() == skip {
			continue
		}
		if err := s.Send(event); err != nil {
			h.drop(s, err)
		}
	}
}

// SendTo delivers event to a single session.
func (h *Hub) SendTo(id string, event models.Event) error {
	s, ok := h.Get(id)
	if !ok {
		return ErrSessionClosed
	}
	if err := s.Send(event); err != nil {
		h.drop(s, err)
		return err
	}
	return nil
}

// CloseAll closes every session, used on shutdown.
func (h *Hub) CloseAll() {
	for _, s := range h.snapshot() {
		_ = s.Close()
		h.Remove(s.ID())
	}
}

func (h *Hub) snapshot() []Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// drop closes a session that cannot keep up. It reconnects for a fresh snapshot.
func (h *Hub) drop(s Session, err error) {
	logger.Warn().Err(err).Str("conn_id", s.ID()).Msg("session send failed, closing")
	_ = s.Close()
	if h.Remove(s.ID()) {
		h.publishWSError(s.Info(), err)
	}
}

func (h *Hub) publishWSError(info ConnInfo, err error) {
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), sessionRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   sessionPayload(info, "ws_error", err.Error()),
	}, headers)
	observability.IncWSEvent(info.Kind, "ws_error")
}

func sessionPayload(info ConnInfo, event, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        info.Kind,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
