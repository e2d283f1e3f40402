package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	routingKey string
	event      any
	headers    map[string]string
}

func (p *capturePublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	p.routingKey, p.event, p.headers = routingKey, event, headers
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestAuditEmitterBuildsEnvelope(t *testing.T) {
	publisher := &capturePublisher{}
	emitter := NewAuditEmitter(publisher, "audit.dashboard", "support-dashboard", "test")
	emitter.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	emitter.Emit(context.Background(), AuditRecord{
		Action:    "ledger.sent",
		Text:      "money sent",
		RequestID: "req-9",
		Actor:     "alice",
		Fields:    map[string]any{"amount": 12.5},
	})

	require.Equal(t, "audit.dashboard", publisher.routingKey)
	env, ok := publisher.event.(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, "2024-05-01T12:00:00Z", env.OccurredAt)
	assert.Equal(t, "INFO", env.Payload.Level)
	assert.Equal(t, "ledger.sent", env.Payload.Action)
	require.NotNil(t, env.Actor)
	assert.Equal(t, "alice", *env.Actor)
	assert.Equal(t, map[string]string{"x-request-id": "req-9"}, publisher.headers)
}

func TestAuditEmitterNilSafe(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), AuditRecord{Action: "noop"})
	})

	publisher := &capturePublisher{}
	NewAuditEmitter(publisher, "audit.dashboard", "svc", "test").Emit(context.Background(), AuditRecord{Action: "anonymous"})
	env := publisher.event.(AuditEnvelope)
	assert.Nil(t, env.Actor)
	assert.Empty(t, publisher.headers)
}
