package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"support-dashboard/internal/ingest"
	"support-dashboard/internal/logger"
	"support-dashboard/internal/telemetry"
)

// UploadHandler accepts multipart uploads and stores them.
type UploadHandler struct {
	store    ingest.Store
	maxBytes int64
	audit    *telemetry.AuditEmitter
}

// NewUploadHandler builds an UploadHandler.
func NewUploadHandler(store ingest.Store, maxBytes int64, audit *telemetry.AuditEmitter) *UploadHandler {
	return &UploadHandler{store: store, maxBytes: maxBytes, audit: audit}
}

// Upload stores the "file" form field and returns its public path.
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.maxBytes > 0 {
		if c.Request.ContentLength > h.maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "message": "File too large"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "message": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "No file uploaded"})
		return
	}
	defer file.Close()

	filePath, err := h.store.Save(c.Request.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		logger.Error().Err(err).Str("file", header.Filename).Str("request_id", requestIDFromContext(c)).Msg("upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Upload failed"})
		return
	}

	h.emitAudit(c, "upload.stored", map[string]any{
		"fileName": header.Filename,
		"filePath": filePath,
		"size":     header.Size,
		"store":    h.store.Kind(),
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "filePath": filePath})
}

func (h *UploadHandler) emitAudit(c *gin.Context, action string, fields map[string]any) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), telemetry.AuditRecord{
		Action:    action,
		Text:      "file uploaded",
		RequestID: requestIDFromContext(c),
		Fields:    fields,
	})
}
