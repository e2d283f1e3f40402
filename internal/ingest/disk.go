package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"support-dashboard/internal/logger"
	"support-dashboard/internal/observability"
)

// DiskStore writes uploads into a local directory served under URLPrefix.
type DiskStore struct {
	Dir       string
	URLPrefix string
}

func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{Dir: dir, URLPrefix: "/uploads"}
}

func (s *DiskStore) Kind() string { return "disk" }

func (s *DiskStore) Save(ctx context.Context, originalName, contentType string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		observability.ObserveUpload(s.Kind(), 0, err)
		return "", fmt.Errorf("%w: create %s: %v", ErrUpload, s.Dir, err)
	}

	name := objectName(originalName)
	target := filepath.Join(s.Dir, name)
	size, err := writeFile(target, r)
	observability.ObserveUpload(s.Kind(), size, err)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}

	logger.Info().
		Str("file", name).
		Str("original", originalName).
		Str("content_type", contentType).
		Str("size", humanize.Bytes(uint64(size))).
		Msg("upload stored")
	return path.Join(s.URLPrefix, name), nil
}

func writeFile(target string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return n, err
	}
	return n, nil
}
