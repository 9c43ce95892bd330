package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/timmy/vismatch/internal/api/middleware"
	"github.com/timmy/vismatch/internal/service"
)

// HistoryHandler serves the search history of the authenticated caller.
type HistoryHandler struct {
	historyService *service.HistoryService
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(historyService *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{historyService: historyService}
}

// List handles GET /api/history. Requires the auth middleware.
func (h *HistoryHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	records, err := h.historyService.List(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		respondError(c, err, "Failed to load search history")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"history": records,
		"total":   len(records),
	})
}
