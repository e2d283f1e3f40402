package telemetry

import (
	"context"
	"time"

	"support-dashboard/internal/logger"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// AuditEmitter publishes an audit envelope for every applied mutation.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	Actor         *string      `json:"actor,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string         `json:"level"`
	Action string         `json:"action"`
	Text   string         `json:"text"`
	Fields map[string]any `json:"fields,omitempty"`
}

// AuditRecord is one audited action.
type AuditRecord struct {
	Level     string
	Action    string
	Text      string
	RequestID string
	Actor     string
	Fields    map[string]any
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}

	level := rec.Level
	if level == "" {
		level = "INFO"
	}
	var actor *string
	if rec.Actor != "" {
		actor = &rec.Actor
	}

	logger.Debug().
		Str("level", level).
		Str("action", rec.Action).
		Str("request_id", rec.RequestID).
		Str("text", rec.Text).
		Msg("audit emit")
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		Actor:         actor,
		Payload: AuditPayload{
			Level:  level,
			Action: rec.Action,
			Text:   rec.Text,
			Fields: rec.Fields,
		},
	}

	headers := map[string]string{}
	if rec.RequestID != "" {
		headers["x-request-id"] = rec.RequestID
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		logger.Warn().Err(err).Str("action", rec.Action).Msg("audit publish failed")
	}
}
