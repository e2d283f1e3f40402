package models

import "encoding/json"

// Intents sent by clients.
const (
	IntentSendMessage        = "send-message"
	IntentUploadFile         = "upload-file"
	IntentEditMessage        = "edit-message"
	IntentDeleteMessage      = "delete-message"
	IntentTyping             = "typing"
	IntentStopTyping         = "stop-typing"
	IntentSendMoney          = "send-money"
	IntentRequestPayment     = "request-payment"
	IntentAddTransaction     = "add-p2p-transaction"
	IntentRequestTransaction = "request-p2p-transaction-history"
)

// Events pushed to clients.
const (
	EventChatHistory        = "chat-history"
	EventMessage            = "message"
	EventMessageEdited      = "message-edited"
	EventMessageDeleted     = "message-deleted"
	EventUserTyping         = "user-typing"
	EventUserStoppedTyping  = "user-stopped-typing"
	EventMoneySent          = "money-sent"
	EventPaymentRequested   = "payment-requested"
	EventNewTransaction     = "new-p2p-transaction"
	EventTransactionHistory = "p2p-transaction-history"
	EventIntentRejected     = "intent-rejected"
)

// Event is an outbound notification with positional arguments.
type Event struct {
	Name string `json:"event"`
	Args []any  `json:"args"`
}

// NewEvent builds an Event.
func NewEvent(name string, args ...any) Event {
	if args == nil {
		args = []any{}
	}
	return Event{Name: name, Args: args}
}

// Intent is an inbound client request.
type Intent struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EditMessageRequest is the edit-message payload; also broadcast as message-edited.
type EditMessageRequest struct {
	MessageID  *MessageID `json:"messageId"`
	NewContent string     `json:"newContent"`
}

// MessageEdited is the message-edited broadcast payload.
type MessageEdited struct {
	MessageID  MessageID `json:"messageId"`
	NewContent string    `json:"newContent"`
}

// DeleteMessageRequest is the delete-message payload.
type DeleteMessageRequest struct {
	MessageID *MessageID `json:"messageId"`
}

// UploadFileRequest announces a completed upload.
type UploadFileRequest struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	UserName  string `json:"userName"`
	Timestamp string `json:"timestamp"`
	FileID    string `json:"fileId"`
}

// TypingNotice is relayed to other sessions.
type TypingNotice struct {
	UserName string `json:"userName"`
}

// TransferRequest is the send-money / request-payment payload.
type TransferRequest struct {
	UserName  string  `json:"userName"`
	Peer      string  `json:"peer"`
	Amount    float64 `json:"amount"`
	Timestamp string  `json:"timestamp"`
	Note      string  `json:"note"`
}

// IntentRejection is sent to the originating session only.
type IntentRejection struct {
	Intent  string `json:"intent"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
