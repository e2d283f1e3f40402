package models

import (
	"bytes"
	"encoding/json"
	"errors"
)

// MessageType distinguishes text from file attachment messages.
type MessageType string

const (
	MessageTypeUser MessageType = "user"
	MessageTypeBot  MessageType = "bot"
	MessageTypeFile MessageType = "file"
)

// DeliveryStatus is advisory and simulated by clients.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "Sent"
	StatusDelivered DeliveryStatus = "Delivered"
	StatusRead      DeliveryStatus = "Read"
)

// MessageID is the position of a message in the message log.
type MessageID int

// FileRef points at an uploaded file. The bytes live in the upload store.
type FileRef struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
	IsImage  bool   `json:"isImage"`
}

// Content is either plain text or a file reference.
type Content struct {
	Text string
	File *FileRef
}

// TextContent wraps a text body.
func TextContent(text string) Content {
	return Content{Text: text}
}

// FileContent wraps a file reference body.
func FileContent(ref FileRef) Content {
	return Content{File: &ref}
}

// IsFile reports whether the content is a file reference.
func (c Content) IsFile() bool {
	return c.File != nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.File != nil {
		return json.Marshal(c.File)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = Content{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*c = Content{Text: text}
		return nil
	case '{':
		var ref FileRef
		if err := json.Unmarshal(trimmed, &ref); err != nil {
			return err
		}
		*c = Content{File: &ref}
		return nil
	default:
		return errors.New("content must be a string or a file reference")
	}
}

// Message represents a chat message as persisted and broadcast.
type Message struct {
	Type      MessageType    `json:"type"`
	UserName  string         `json:"userName"`
	Content   Content        `json:"content"`
	Timestamp string         `json:"timestamp"`
	Status    DeliveryStatus `json:"status,omitempty"`
}

// Editable reports whether the message body may be replaced.
func (m Message) Editable() bool {
	return m.Type == MessageTypeUser || m.Type == MessageTypeBot
}
