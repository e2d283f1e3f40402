package repositories

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"support-dashboard/internal/logger"
	"support-dashboard/internal/observability"
)

// writeFunc replaces the whole file content with value.
type writeFunc func(path string, value any) error

// jsonFile is a JSON document rewritten in full on every save.
type jsonFile struct {
	name  string
	path  string
	write writeFunc
}

func newJSONFile(name, path string) jsonFile {
	return jsonFile{name: name, path: path, write: writeJSONAtomic}
}

// load decodes the file into out. A missing file reports false.
func (f jsonFile) load(out any) (bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", f.path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return true, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return true, nil
}

// save writes value, retrying once before giving up.
func (f jsonFile) save(value any) error {
	start := time.Now()
	err := f.write(f.path, value)
	if err != nil {
		logger.Warn().Err(err).Str("log", f.name).Msg("persist failed, retrying")
		err = f.write(f.path, value)
	}
	observability.ObservePersist(f.name, time.Since(start), err)
	if err != nil {
		logger.Error().Err(err).Str("log", f.name).Str("path", f.path).Msg("persist failed")
		return fmt.Errorf("%w: %s: %v", ErrPersistence, f.name, err)
	}
	return nil
}

func writeJSONAtomic(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WriteJSONAtomic replaces the file at path with the indented JSON encoding of value.
func WriteJSONAtomic(path string, value any) error {
	return writeJSONAtomic(path, value)
}
