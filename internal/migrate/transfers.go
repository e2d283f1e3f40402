// Package migrate backfills legacy ledger files written before every entry
// carried a date and a transaction id.
package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"support-dashboard/internal/logger"
	"support-dashboard/internal/models"
	"support-dashboard/internal/repositories"
)

var displayTime = regexp.MustCompile(`(?i)(\d{1,2}):(\d{2})\s?(AM|PM)`)

// Options configures a transfers migration.
type Options struct {
	Path  string
	Now   func() time.Time
	NewID func() string
}

// Result summarizes a migration run.
type Result struct {
	BackupPath  string
	Total       int
	DatesFilled int
	IDsFilled   int
}

// Transfers backs up the ledger file, fills missing dates and ids, sorts the
// entries newest first and rewrites the file.
func Transfers(opts Options) (Result, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	raw, err := os.ReadFile(opts.Path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", opts.Path, err)
	}
	var transactions []models.Transaction
	if err := json.Unmarshal(raw, &transactions); err != nil {
		return Result{}, fmt.Errorf("decode %s: %w", opts.Path, err)
	}

	now := opts.Now()
	result := Result{
		BackupPath: filepath.Join(filepath.Dir(opts.Path), "transfers-backup-"+now.Format("20060102-150405")+".json"),
		Total:      len(transactions),
	}
	if err := os.WriteFile(result.BackupPath, raw, 0o644); err != nil {
		return Result{}, fmt.Errorf("write backup: %w", err)
	}
	logger.Info().Str("backup", result.BackupPath).Msg("transfers backup created")

	for i := range transactions {
		tx := &transactions[i]
		if tx.Date == nil {
			date := dateFromDisplay(tx.Timestamp, now)
			tx.Date = &date
			result.DatesFilled++
		}
		if tx.TransactionID == "" {
			tx.TransactionID = opts.NewID()
			result.IDsFilled++
		}
	}
	models.SortNewestFirst(transactions)

	if err := repositories.WriteJSONAtomic(opts.Path, transactions); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", opts.Path, err)
	}
	logger.Info().
		Int("records", result.Total).
		Int("dates_filled", result.DatesFilled).
		Int("ids_filled", result.IDsFilled).
		Msg("transfers migrated")
	return result, nil
}

// dateFromDisplay reads an "h:mm AM" display time as a time on now's day,
// falling back to now itself.
func dateFromDisplay(display string, now time.Time) time.Time {
	match := displayTime.FindStringSubmatch(display)
	if match == nil {
		return now.UTC()
	}
	hours, _ := strconv.Atoi(match[1])
	minutes, _ := strconv.Atoi(match[2])
	switch strings.ToUpper(match[3]) {
	case "PM":
		if hours != 12 {
			hours += 12
		}
	case "AM":
		if hours == 12 {
			hours = 0
		}
	}
	return time.Date(now.Year(), now.Month(), now.Day(), hours, minutes, 0, 0, now.Location()).UTC()
}
