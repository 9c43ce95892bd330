package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	strategy string
	now      func() time.Time
}

// NewHealthHandler creates a new health handler reporting the active embedding strategy.
func NewHealthHandler(strategy string) *HealthHandler {
	return &HealthHandler{strategy: strategy, now: time.Now}
}

// Health returns the liveness status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"strategy": h.strategy,
	})
}

// APIHealth handles GET /api/health.
func (h *HealthHandler) APIHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Visual Product Matcher API is running",
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}
