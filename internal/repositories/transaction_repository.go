package repositories

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"support-dashboard/internal/models"
	"support-dashboard/internal/observability"
)

// TransactionRepository defines interactions with the peer-to-peer ledger.
type TransactionRepository interface {
	Append(ctx context.Context, tx models.Transaction) (models.Transaction, error)
	Snapshot(ctx context.Context) ([]models.Transaction, error)
}

// TransactionLog is an append-only ledger backed by one JSON file.
type TransactionLog struct {
	mu      sync.RWMutex
	file    jsonFile
	entries []models.Transaction
	now     func() time.Time
	lastErr error
}

// TransactionLogOption customizes a TransactionLog.
type TransactionLogOption func(*TransactionLog)

// WithClock sets the clock used to stamp appended entries.
func WithClock(now func() time.Time) TransactionLogOption {
	return func(l *TransactionLog) {
		if now != nil {
			l.now = now
		}
	}
}

// OpenTransactionLog loads the ledger at path, creating an empty file when missing.
func OpenTransactionLog(path string, opts ...TransactionLogOption) (*TransactionLog, error) {
	l := &TransactionLog{file: newJSONFile("transfers", path), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}

	found, err := l.file.load(&l.entries)
	if err != nil {
		return nil, err
	}
	if l.entries == nil {
		l.entries = []models.Transaction{}
	}
	if !found {
		if err := l.file.save(l.entries); err != nil {
			return nil, err
		}
	}
	observability.SetLogSize(l.file.name, len(l.entries))
	return l, nil
}

// Append validates tx, stamps the authoritative date and persists the ledger.
// The stored record is returned.
func (l *TransactionLog) Append(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return models.Transaction{}, err
	}
	if err := validateTransaction(tx); err != nil {
		return models.Transaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stamped := l.now().UTC()
	tx.Date = &stamped
	l.entries = append(l.entries, tx)
	if err := l.persist(); err != nil {
		l.entries = l.entries[:len(l.entries)-1]
		return models.Transaction{}, err
	}
	return tx, nil
}

// Snapshot returns a copy of the ledger in insertion order.
func (l *TransactionLog) Snapshot(ctx context.Context) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Transaction, len(l.entries))
	copy(out, l.entries)
	return out, nil
}

// Len reports the number of entries.
func (l *TransactionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Name identifies the log in health reports.
func (l *TransactionLog) Name() string { return l.file.name }

// Err returns the last persistence failure, or nil once a write succeeds.
func (l *TransactionLog) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastErr
}

func (l *TransactionLog) persist() error {
	l.lastErr = l.file.save(l.entries)
	if l.lastErr == nil {
		observability.SetLogSize(l.file.name, len(l.entries))
	}
	return l.lastErr
}

func validateTransaction(tx models.Transaction) error {
	switch tx.Type {
	case models.TransactionSent, models.TransactionRequested:
	default:
		return invalid("type", fmt.Sprintf("unknown transaction type %q", tx.Type))
	}
	if strings.TrimSpace(tx.UserName) == "" {
		return invalid("userName", "must not be empty")
	}
	if strings.TrimSpace(tx.Peer) == "" {
		return invalid("peer", "must not be empty")
	}
	if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) || tx.Amount <= 0 {
		return invalid("amount", "must be a positive number")
	}
	return nil
}
