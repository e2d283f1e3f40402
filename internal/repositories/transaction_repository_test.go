package repositories

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-dashboard/internal/models"
)

func sentTransaction(amount float64) models.Transaction {
	return models.Transaction{
		Type:          models.TransactionSent,
		UserName:      "alice",
		Peer:          "bob",
		Amount:        amount,
		Timestamp:     "10:00 AM",
		TransactionID: "t1",
	}
}

func TestTransactionLogAppendStampsDate(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "transfers.json")
	log, err := OpenTransactionLog(path, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	tx := sentTransaction(25)
	client := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	tx.Date = &client

	stored, err := log.Append(context.Background(), tx)
	require.NoError(t, err)
	require.NotNil(t, stored.Date)
	assert.True(t, stored.Date.Equal(fixed))

	reopened, err := OpenTransactionLog(path)
	require.NoError(t, err)
	snapshot, err := reopened.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "t1", snapshot[0].TransactionID)
	assert.True(t, snapshot[0].Date.Equal(fixed))
}

func TestTransactionLogValidation(t *testing.T) {
	log, err := OpenTransactionLog(filepath.Join(t.TempDir(), "transfers.json"))
	require.NoError(t, err)
	ctx := context.Background()

	cases := map[string]func(tx *models.Transaction){
		"zero amount":     func(tx *models.Transaction) { tx.Amount = 0 },
		"negative amount": func(tx *models.Transaction) { tx.Amount = -4 },
		"missing peer":    func(tx *models.Transaction) { tx.Peer = "" },
		"missing user":    func(tx *models.Transaction) { tx.UserName = " " },
		"unknown type":    func(tx *models.Transaction) { tx.Type = "refund" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tx := sentTransaction(10)
			mutate(&tx)
			_, err := log.Append(ctx, tx)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Equal(t, 0, log.Len())
}

func TestTransactionLogKeepsInsertionOrder(t *testing.T) {
	log, err := OpenTransactionLog(filepath.Join(t.TempDir(), "transfers.json"))
	require.NoError(t, err)
	ctx := context.Background()

	for _, amount := range []float64{1, 2, 3} {
		_, err := log.Append(ctx, sentTransaction(amount))
		require.NoError(t, err)
	}

	snapshot, err := log.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 3)
	assert.Equal(t, 1.0, snapshot[0].Amount)
	assert.Equal(t, 3.0, snapshot[2].Amount)
}

func TestTransactionLogRollsBackOnPersistFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfers.json")
	log, err := OpenTransactionLog(path)
	require.NoError(t, err)

	log.file.write = func(string, any) error { return errors.New("read-only") }

	_, err = log.Append(context.Background(), sentTransaction(5))
	require.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 0, log.Len())
	require.Error(t, log.Err())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestOpenTransactionLogRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfers.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"amount":`), 0o644))

	_, err := OpenTransactionLog(path)
	require.Error(t, err)
}
