package repositories

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"support-dashboard/internal/models"
	"support-dashboard/internal/observability"
)

// MessageRepository defines interactions with the chat message log.
type MessageRepository interface {
	Append(ctx context.Context, msg models.Message) (models.MessageID, error)
	Edit(ctx context.Context, id models.MessageID, content string) error
	Delete(ctx context.Context, id models.MessageID) (bool, error)
	Snapshot(ctx context.Context) ([]*models.Message, error)
}

// MessageLog is an append-and-tombstone message store backed by one JSON file.
// A message's id is its position; deleted slots stay as nil forever.
type MessageLog struct {
	mu      sync.RWMutex
	file    jsonFile
	entries []*models.Message
	lastErr error
}

// OpenMessageLog loads the log at path, creating an empty file when missing.
func OpenMessageLog(path string) (*MessageLog, error) {
	l := &MessageLog{file: newJSONFile("messages", path)}

	found, err := l.file.load(&l.entries)
	if err != nil {
		return nil, err
	}
	if l.entries == nil {
		l.entries = []*models.Message{}
	}
	if !found {
		if err := l.file.save(l.entries); err != nil {
			return nil, err
		}
	}
	observability.SetLogSize("messages", len(l.entries))
	return l, nil
}

// Append validates msg, stores it at the next index and persists the log.
func (l *MessageLog) Append(ctx context.Context, msg models.Message) (models.MessageID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validateMessage(msg); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := models.MessageID(len(l.entries))
	stored := msg
	l.entries = append(l.entries, &stored)
	if err := l.persist(); err != nil {
		l.entries = l.entries[:len(l.entries)-1]
		return 0, err
	}
	return id, nil
}

// Edit replaces the body of a live text message.
func (l *MessageLog) Edit(ctx context.Context, id models.MessageID, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg, err := l.live(id)
	if err != nil {
		return err
	}
	if !msg.Editable() {
		return fmt.Errorf("%w: %s messages cannot be edited", ErrRejected, msg.Type)
	}
	if strings.TrimSpace(content) == "" {
		return invalid("newContent", "must not be empty")
	}

	previous := msg.Content
	msg.Content = models.TextContent(content)
	if err := l.persist(); err != nil {
		msg.Content = previous
		return err
	}
	return nil
}

// Delete tombstones the slot at id. Deleting a tombstone is a no-op and
// reports false.
func (l *MessageLog) Delete(ctx context.Context, id models.MessageID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if id < 0 || int(id) >= len(l.entries) {
		return false, fmt.Errorf("%w: index %d", ErrNotFound, id)
	}
	previous := l.entries[id]
	if previous == nil {
		return false, nil
	}

	l.entries[id] = nil
	if err := l.persist(); err != nil {
		l.entries[id] = previous
		return false, err
	}
	return true, nil
}

// Snapshot returns a copy of the log in insertion order, tombstones included.
func (l *MessageLog) Snapshot(ctx context.Context) ([]*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*models.Message, len(l.entries))
	for i, msg := range l.entries {
		if msg == nil {
			continue
		}
		clone := *msg
		if msg.Content.File != nil {
			ref := *msg.Content.File
			clone.Content.File = &ref
		}
		out[i] = &clone
	}
	return out, nil
}

// Len reports the number of slots, tombstones included.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Name identifies the log in health reports.
func (l *MessageLog) Name() string { return l.file.name }

// Err returns the last persistence failure, or nil once a write succeeds.
func (l *MessageLog) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastErr
}

func (l *MessageLog) live(id models.MessageID) (*models.Message, error) {
	if id < 0 || int(id) >= len(l.entries) {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, id)
	}
	msg := l.entries[id]
	if msg == nil {
		return nil, fmt.Errorf("%w: index %d was deleted", ErrNotFound, id)
	}
	return msg, nil
}

func (l *MessageLog) persist() error {
	l.lastErr = l.file.save(l.entries)
	if l.lastErr == nil {
		observability.SetLogSize(l.file.name, len(l.entries))
	}
	return l.lastErr
}

func validateMessage(msg models.Message) error {
	if strings.TrimSpace(msg.UserName) == "" {
		return invalid("userName", "must not be empty")
	}
	switch msg.Type {
	case models.MessageTypeUser, models.MessageTypeBot:
		if msg.Content.IsFile() {
			return invalid("content", "text messages carry a string body")
		}
		if strings.TrimSpace(msg.Content.Text) == "" {
			return invalid("content", "must not be empty")
		}
	case models.MessageTypeFile:
		ref := msg.Content.File
		if ref == nil {
			return invalid("content", "file messages carry a file reference")
		}
		if ref.FilePath == "" || ref.FileName == "" {
			return invalid("content", "file reference needs fileName and filePath")
		}
	default:
		return invalid("type", fmt.Sprintf("unknown message type %q", msg.Type))
	}
	return nil
}
