package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/timmy/vismatch/internal/logger"
	"github.com/timmy/vismatch/internal/service"
)

// AdminHandler runs catalog maintenance jobs. One precompute runs at a time.
type AdminHandler struct {
	catalogService *service.CatalogService

	mu            sync.RWMutex
	isRunning     bool
	lastResult    *service.PrecomputeResult
	lastRunTime   time.Time
	lastRunStatus string
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - catalogService: catalog service that owns precompute.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(catalogService *service.CatalogService) *AdminHandler {
	return &AdminHandler{catalogService: catalogService}
}

// PrecomputeRequest is the body of POST /api/admin/precompute. An empty body
// recomputes every item.
type PrecomputeRequest struct {
	MissingOnly bool `json:"missingOnly"`
	Workers     int  `json:"workers" binding:"min=0,max=64"`
}

// PrecomputeStatusResponse reports the state of the precompute job.
type PrecomputeStatusResponse struct {
	IsRunning     bool                      `json:"is_running"`
	LastRunTime   string                    `json:"last_run_time,omitempty"`
	LastRunStatus string                    `json:"last_run_status,omitempty"`
	LastResult    *service.PrecomputeResult `json:"last_result,omitempty"`
}

// TriggerPrecompute recomputes catalog embeddings and responds when the run is done.
// The run is detached from the request, so a client disconnect does not abort it.
func (h *AdminHandler) TriggerPrecompute(c *gin.Context) {
	ctx := c.Request.Context()

	var req PrecomputeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.CtxWarn(ctx, "Invalid precompute request: client_ip=%s, error=%v", c.ClientIP(), err)
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
	}

	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		logger.CtxWarn(ctx, "Precompute request rejected: already running, client_ip=%s", c.ClientIP())
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "Precompute is already running"})
		return
	}
	h.isRunning = true
	h.mu.Unlock()

	logger.CtxInfo(ctx, "Starting precompute: missing_only=%v, workers=%d", req.MissingOnly, req.Workers)
	result, err := h.runPrecompute(context.WithoutCancel(ctx), service.PrecomputeOptions{
		MissingOnly: req.MissingOnly,
		Workers:     req.Workers,
	})

	if err != nil {
		respondError(c, err, "Precompute failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Precompute completed",
		"result":  result,
	})
}

// runPrecompute runs one precompute and records its outcome. The running flag
// is cleared even when the run panics.
func (h *AdminHandler) runPrecompute(ctx context.Context, opts service.PrecomputeOptions) (result *service.PrecomputeResult, err error) {
	finished := false
	defer func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.isRunning = false
		h.lastRunTime = time.Now()
		switch {
		case !finished:
			h.lastRunStatus = "failed: panic"
		case err != nil:
			h.lastRunStatus = "failed: " + err.Error()
		default:
			h.lastRunStatus = "success"
			h.lastResult = result
		}
	}()

	result, err = h.catalogService.Precompute(ctx, opts)
	finished = true
	return result, err
}

// GetPrecomputeStatus returns the current precompute status.
func (h *AdminHandler) GetPrecomputeStatus(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := PrecomputeStatusResponse{
		IsRunning:     h.isRunning,
		LastRunStatus: h.lastRunStatus,
		LastResult:    h.lastResult,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}
