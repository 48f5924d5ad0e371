package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pricewatch/internal/scheduler"
)

// StatusHandler reports process health and the last tracking cycle.
type StatusHandler struct {
	status  func() scheduler.Status
	version string
}

// NewStatusHandler creates a StatusHandler. status may be nil when no
// scheduler is running.
func NewStatusHandler(status func() scheduler.Status, version string) *StatusHandler {
	return &StatusHandler{status: status, version: version}
}

// Health is a liveness probe.
// GET /api/health
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

// Status returns the scheduler state and the last cycle report.
// GET /api/v1/status
func (h *StatusHandler) Status(c *gin.Context) {
	if h.status == nil {
		c.JSON(http.StatusOK, gin.H{"scheduler": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduler": h.status()})
}
