package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"support-dashboard/internal/ingest"
	"support-dashboard/internal/logger"
	"support-dashboard/internal/models"
	"support-dashboard/internal/observability"
	"support-dashboard/internal/repositories"
	"support-dashboard/internal/telemetry"
)

// Rejection codes carried by intent-rejected.
const (
	CodeValidation    = "VALIDATION"
	CodeNotFound      = "NOT_FOUND"
	CodeRejected      = "REJECTED"
	CodePersistence   = "PERSISTENCE"
	CodeRateLimited   = "RATE_LIMITED"
	CodeUnknownIntent = "UNKNOWN_INTENT"
	CodeInternal      = "INTERNAL"
)

var (
	ErrDispatcherStopped = errors.New("dispatcher stopped")

	errUnknownIntent = errors.New("unknown intent")
	errDuplicate     = errors.New("duplicate transaction")
)

type jobKind int

const (
	jobJoin jobKind = iota
	jobLeave
	jobIntent
)

type job struct {
	kind      jobKind
	session   Session
	sessionID string
	intent    models.Intent
}

type intentHandler func(ctx context.Context, origin Session, data json.RawMessage) error

// Dispatcher applies joins, leaves and intents one at a time, in arrival
// order, so every session observes the same sequence of log mutations. A
// join takes its snapshot on the same timeline: each mutation is either in
// the snapshot or broadcast to the session afterwards, never both.
type Dispatcher struct {
	hub          *Hub
	messages     repositories.MessageRepository
	transactions repositories.TransactionRepository
	audit        *telemetry.AuditEmitter
	tracer       trace.Tracer
	newID        func() string
	now          func() time.Time

	jobs     chan job
	stopped  chan struct{}
	seen     map[string]struct{}
	handlers map[string]intentHandler
}

type DispatcherOption func(*Dispatcher)

func WithAudit(audit *telemetry.AuditEmitter) DispatcherOption {
	return func(d *Dispatcher) { d.audit = audit }
}

func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.jobs = make(chan job, n)
		}
	}
}

// WithIDGenerator overrides how transaction and file ids are minted.
func WithIDGenerator(fn func() string) DispatcherOption {
	return func(d *Dispatcher) {
		if fn != nil {
			d.newID = fn
		}
	}
}

// WithDispatchClock sets the clock used for display timestamps the client left empty.
func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher seeds the known transaction ids from the ledger.
func NewDispatcher(ctx context.Context, hub *Hub, messages repositories.MessageRepository, transactions repositories.TransactionRepository, opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{
		hub:          hub,
		messages:     messages,
		transactions: transactions,
		tracer:       otel.Tracer("support-dashboard/ws"),
		newID:        uuid.NewString,
		now:          time.Now,
		jobs:         make(chan job, 1024),
		stopped:      make(chan struct{}),
		seen:         make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	existing, err := transactions.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed transaction ids: %w", err)
	}
	for _, tx := range existing {
		if tx.TransactionID != "" {
			d.seen[tx.TransactionID] = struct{}{}
		}
	}

	d.handlers = map[string]intentHandler{
		models.IntentSendMessage:        d.sendMessage,
		models.IntentUploadFile:         d.uploadFile,
		models.IntentEditMessage:        d.editMessage,
		models.IntentDeleteMessage:      d.deleteMessage,
		models.IntentTyping:             d.relayTyping(models.EventUserTyping),
		models.IntentStopTyping:         d.relayTyping(models.EventUserStoppedTyping),
		models.IntentSendMoney:          d.transfer(models.TransactionSent, models.EventMoneySent),
		models.IntentRequestPayment:     d.transfer(models.TransactionRequested, models.EventPaymentRequested),
		models.IntentAddTransaction:     d.addTransaction,
		models.IntentRequestTransaction: d.transactionHistory,
	}
	return d, nil
}

// Run processes queued work until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.jobs:
			d.process(ctx, j)
		}
	}
}

// Join queues s for activation. Once processed the session holds both
// snapshots and receives every later broadcast.
func (d *Dispatcher) Join(ctx context.Context, s Session) error {
	return d.enqueue(ctx, job{kind: jobJoin, session: s, sessionID: s.ID()})
}

// Leave queues removal of a session.
func (d *Dispatcher) Leave(sessionID string) {
	_ = d.enqueue(context.Background(), job{kind: jobLeave, sessionID: sessionID})
}

// Submit queues an intent from sessionID.
func (d *Dispatcher) Submit(ctx context.Context, sessionID string, intent models.Intent) error {
	return d.enqueue(ctx, job{kind: jobIntent, sessionID: sessionID, intent: intent})
}

// Reject sends intent-rejected to s alone.
func Reject(s Session, intent, code, message string) {
	event := models.NewEvent(models.EventIntentRejected, models.IntentRejection{
		Intent:  intent,
		Code:    code,
		Message: message,
	})
	if err := s.Send(event); err != nil {
		logger.Debug().Err(err).Str("conn_id", s.ID()).Msg("rejection not delivered")
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, j job) error {
	select {
	case <-d.stopped:
		return ErrDispatcherStopped
	default:
	}

	select {
	case d.jobs <- j:
		return nil
	case <-d.stopped:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) process(ctx context.Context, j job) {
	switch j.kind {
	case jobJoin:
		d.join(ctx, j.session)
	case jobLeave:
		d.hub.Remove(j.sessionID)
	case jobIntent:
		d.apply(ctx, j.sessionID, j.intent)
	}
}

func (d *Dispatcher) join(ctx context.Context, s Session) {
	messages, err := d.messages.Snapshot(ctx)
	if err == nil {
		var transactions []models.Transaction
		transactions, err = d.transactions.Snapshot(ctx)
		if err == nil {
			d.hub.Add(s)
			if d.hub.SendTo(s.ID(), models.NewEvent(models.EventChatHistory, messages)) != nil {
				return
			}
			_ = d.hub.SendTo(s.ID(), models.NewEvent(models.EventTransactionHistory, transactions))
			return
		}
	}
	logger.Error().Err(err).Str("conn_id", s.ID()).Msg("snapshot for join failed")
	_ = s.Close()
}

func (d *Dispatcher) apply(ctx context.Context, sessionID string, intent models.Intent) {
	origin, ok := d.hub.Get(sessionID)
	if !ok {
		return
	}

	ctx, span := d.tracer.Start(ctx, "dispatch "+intent.Name)
	defer span.End()
	span.SetAttributes(
		attribute.String("intent", intent.Name),
		attribute.String("conn_id", sessionID),
	)

	handler, ok := d.handlers[intent.Name]
	var err error
	if !ok {
		err = fmt.Errorf("%w: %q", errUnknownIntent, intent.Name)
	} else {
		err = handler(ctx, origin, intent.Data)
	}

	switch {
	case err == nil:
		observability.IncIntent(intent.Name, "ok")
	case errors.Is(err, errDuplicate):
		observability.IncIntent(intent.Name, "duplicate")
		logger.Debug().Str("intent", intent.Name).Err(err).Msg("duplicate dropped")
	default:
		code := rejectionCode(err)
		observability.IncIntent(intent.Name, code)
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		logger.Warn().Err(err).Str("intent", intent.Name).Str("conn_id", sessionID).Str("code", code).Msg("intent rejected")

		message := err.Error()
		if code == CodeInternal {
			message = "internal error"
		}
		Reject(origin, intent.Name, code, message)
	}
}

func rejectionCode(err error) string {
	switch {
	case errors.Is(err, repositories.ErrValidation):
		return CodeValidation
	case errors.Is(err, repositories.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, repositories.ErrRejected):
		return CodeRejected
	case errors.Is(err, repositories.ErrPersistence):
		return CodePersistence
	case errors.Is(err, errUnknownIntent):
		return CodeUnknownIntent
	default:
		return CodeInternal
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return &repositories.ValidationError{Field: "data", Reason: "payload is required"}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &repositories.ValidationError{Field: "data", Reason: err.Error()}
	}
	return nil
}

func (d *Dispatcher) sendMessage(ctx context.Context, origin Session, data json.RawMessage) error {
	var msg models.Message
	if err := decode(data, &msg); err != nil {
		return err
	}
	if msg.Type == "" {
		msg.Type = models.MessageTypeUser
	}
	if msg.Status == "" {
		msg.Status = models.StatusSent
	}
	if msg.Timestamp == "" {
		msg.Timestamp = d.displayTime()
	}

	id, err := d.messages.Append(ctx, msg)
	if err != nil {
		return err
	}
	d.hub.Broadcast(models.NewEvent(models.EventMessage, msg, id))
	d.emit(ctx, origin, "message.appended", msg.UserName, map[string]any{"messageId": id, "type": msg.Type})
	return nil
}

func (d *Dispatcher) uploadFile(ctx context.Context, origin Session, data json.RawMessage) error {
	var req models.UploadFileRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	fileID := req.FileID
	if fileID == "" {
		fileID = d.newID()
	}
	msg := models.Message{
		Type:     models.MessageTypeFile,
		UserName: req.UserName,
		Content: models.FileContent(models.FileRef{
			FileID:   fileID,
			FileName: req.Name,
			FilePath: req.Path,
			IsImage:  ingest.IsImage(req.Name),
		}),
		Timestamp: req.Timestamp,
		Status:    models.StatusSent,
	}
	if msg.Timestamp == "" {
		msg.Timestamp = d.displayTime()
	}

	id, err := d.messages.Append(ctx, msg)
	if err != nil {
		return err
	}
	d.hub.Broadcast(models.NewEvent(models.EventMessage, msg, id))
	d.emit(ctx, origin, "message.file_shared", msg.UserName, map[string]any{"messageId": id, "fileId": fileID})
	return nil
}

func (d *Dispatcher) editMessage(ctx context.Context, origin Session, data json.RawMessage) error {
	var req models.EditMessageRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.MessageID == nil {
		return &repositories.ValidationError{Field: "messageId", Reason: "is required"}
	}

	if err := d.messages.Edit(ctx, *req.MessageID, req.NewContent); err != nil {
		return err
	}
	d.hub.Broadcast(models.NewEvent(models.EventMessageEdited, models.MessageEdited{
		MessageID:  *req.MessageID,
		NewContent: req.NewContent,
	}))
	d.emit(ctx, origin, "message.edited", "", map[string]any{"messageId": *req.MessageID})
	return nil
}

func (d *Dispatcher) deleteMessage(ctx context.Context, origin Session, data json.RawMessage) error {
	var req models.DeleteMessageRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.MessageID == nil {
		return &repositories.ValidationError{Field: "messageId", Reason: "is required"}
	}

	changed, err := d.messages.Delete(ctx, *req.MessageID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	d.hub.Broadcast(models.NewEvent(models.EventMessageDeleted, *req.MessageID))
	d.emit(ctx, origin, "message.deleted", "", map[string]any{"messageId": *req.MessageID})
	return nil
}

// relayTyping forwards presence hints to everyone but the typist.
func (d *Dispatcher) relayTyping(event string) intentHandler {
	return func(ctx context.Context, origin Session, data json.RawMessage) error {
		var notice models.TypingNotice
		if err := decode(data, &notice); err != nil {
			return err
		}
		d.hub.BroadcastExcept(models.NewEvent(event, notice), origin.ID())
		return nil
	}
}

func (d *Dispatcher) transfer(kind models.TransactionType, event string) intentHandler {
	return func(ctx context.Context, origin Session, data json.RawMessage) error {
		var req models.TransferRequest
		if err := decode(data, &req); err != nil {
			return err
		}

		stored, err := d.transactions.Append(ctx, models.Transaction{
			Type:          kind,
			UserName:      req.UserName,
			Peer:          req.Peer,
			Amount:        req.Amount,
			Timestamp:     req.Timestamp,
			Note:          req.Note,
			TransactionID: d.newID(),
		})
		if err != nil {
			return err
		}
		d.seen[stored.TransactionID] = struct{}{}

		d.hub.Broadcast(models.NewEvent(event, stored))
		d.hub.Broadcast(models.NewEvent(models.EventNewTransaction, stored))
		d.emit(ctx, origin, "ledger."+string(kind), stored.UserName, transactionFields(stored))
		return nil
	}
}

func (d *Dispatcher) addTransaction(ctx context.Context, origin Session, data json.RawMessage) error {
	var tx models.Transaction
	if err := decode(data, &tx); err != nil {
		return err
	}
	if tx.TransactionID == "" {
		tx.TransactionID = d.newID()
	} else if _, ok := d.seen[tx.TransactionID]; ok {
		return fmt.Errorf("%w: %s", errDuplicate, tx.TransactionID)
	}

	stored, err := d.transactions.Append(ctx, tx)
	if err != nil {
		return err
	}
	d.seen[stored.TransactionID] = struct{}{}

	d.hub.Broadcast(models.NewEvent(models.EventNewTransaction, stored))
	d.emit(ctx, origin, "ledger.added", stored.UserName, transactionFields(stored))
	return nil
}

func (d *Dispatcher) transactionHistory(ctx context.Context, origin Session, _ json.RawMessage) error {
	transactions, err := d.transactions.Snapshot(ctx)
	if err != nil {
		return err
	}
	_ = d.hub.SendTo(origin.ID(), models.NewEvent(models.EventTransactionHistory, transactions))
	return nil
}

func (d *Dispatcher) displayTime() string {
	return d.now().Format("03:04 PM")
}

func (d *Dispatcher) emit(ctx context.Context, origin Session, action, actor string, fields map[string]any) {
	d.audit.Emit(ctx, telemetry.AuditRecord{
		Action:    action,
		Text:      fmt.Sprintf("%s via %s", action, origin.Info().Kind),
		RequestID: origin.Info().RequestID,
		Actor:     actor,
		Fields:    fields,
	})
}

func transactionFields(tx models.Transaction) map[string]any {
	return map[string]any{
		"transactionId": tx.TransactionID,
		"peer":          tx.Peer,
		"amount":        tx.Amount,
	}
}
