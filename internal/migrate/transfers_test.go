package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-dashboard/internal/models"
)

func TestDateFromDisplay(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)

	cases := map[string]time.Time{
		"1:05 PM":   time.Date(2024, 5, 10, 13, 5, 0, 0, time.UTC),
		"12:00 AM":  time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		"12:15 pm":  time.Date(2024, 5, 10, 12, 15, 0, 0, time.UTC),
		"9:45AM":    time.Date(2024, 5, 10, 9, 45, 0, 0, time.UTC),
		"yesterday": now,
		"":          now,
	}
	for display, want := range cases {
		assert.True(t, want.Equal(dateFromDisplay(display, now)), display)
	}
}

func TestTransfersBackfillsAndSorts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transfers.json")
	legacy := `[
  {"type":"sent","userName":"a","peer":"b","amount":1,"timestamp":"9:00 AM"},
  {"type":"requested","userName":"a","peer":"c","amount":2,"timestamp":"3:00 PM","transactionId":"keep"},
  {"type":"sent","userName":"a","peer":"d","amount":3,"timestamp":"11:00 AM","date":"2024-05-10T11:00:00Z","transactionId":"dated"}
]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	now := time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC)
	ids := 0
	result, err := Transfers(Options{
		Path: path,
		Now:  func() time.Time { return now },
		NewID: func() string {
			ids++
			return fmt.Sprintf("gen-%d", ids)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.DatesFilled)
	assert.Equal(t, 1, result.IDsFilled)
	assert.Equal(t, filepath.Join(dir, "transfers-backup-20240510-180000.json"), result.BackupPath)

	backup, err := os.ReadFile(result.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, legacy, string(backup))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var migrated []models.Transaction
	require.NoError(t, json.Unmarshal(data, &migrated))
	require.Len(t, migrated, 3)

	assert.Equal(t, "keep", migrated[0].TransactionID)
	assert.Equal(t, "dated", migrated[1].TransactionID)
	assert.Equal(t, "gen-1", migrated[2].TransactionID)
	for _, tx := range migrated {
		require.NotNil(t, tx.Date)
	}
}

func TestTransfersMissingFile(t *testing.T) {
	_, err := Transfers(Options{Path: filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
}
