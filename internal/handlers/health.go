package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StatusReporter summarizes the health of the persistence layer.
type StatusReporter interface {
	Status() (bool, map[string]string)
}

// HealthHandler serves /healthz.
type HealthHandler struct {
	reporter StatusReporter
}

func NewHealthHandler(reporter StatusReporter) *HealthHandler {
	return &HealthHandler{reporter: reporter}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ok, checks := h.reporter.Status()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}
