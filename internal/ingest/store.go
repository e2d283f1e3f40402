// Package ingest stores uploaded files and hands back the public path that
// file messages reference.
package ingest

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrUpload wraps every storage failure.
var ErrUpload = errors.New("upload failed")

// Store persists an uploaded file and returns the path clients fetch it from.
type Store interface {
	Save(ctx context.Context, originalName, contentType string, r io.Reader) (string, error)
	Kind() string
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// IsImage reports whether name has an image extension the client renders inline.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// objectName keeps the original extension and replaces the rest with a uuid.
func objectName(originalName string) string {
	ext := filepath.Ext(filepath.Base(originalName))
	return uuid.NewString() + ext
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
