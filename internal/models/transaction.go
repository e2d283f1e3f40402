package models

import (
	"sort"
	"time"
)

// TransactionType is the direction of a peer-to-peer ledger entry.
type TransactionType string

const (
	TransactionSent      TransactionType = "sent"
	TransactionRequested TransactionType = "requested"
)

// Transaction is a simulated peer-to-peer ledger entry. Entries are never
// mutated once appended.
type Transaction struct {
	Type          TransactionType `json:"type"`
	UserName      string          `json:"userName"`
	Peer          string          `json:"peer"`
	Amount        float64         `json:"amount"`
	Timestamp     string          `json:"timestamp"`
	Note          string          `json:"note,omitempty"`
	Date          *time.Time      `json:"date,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
}

// SortNewestFirst orders transactions by their server-stamped date, newest
// first. Entries without a date keep their relative order at the end.
func SortNewestFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i].Date, txs[j].Date
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
