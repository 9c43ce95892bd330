package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/timmy/vismatch/internal/api/middleware"
	"github.com/timmy/vismatch/internal/service"
)

// MatchHandler handles POST /api/match.
type MatchHandler struct {
	matchService *service.MatchService
	maxBytes     int64
}

// NewMatchHandler creates a new match handler.
// Parameters:
//   - matchService: match pipeline.
//   - maxBytes: request body limit, uploads included.
// Returns:
//   - *MatchHandler: initialized handler.
func NewMatchHandler(matchService *service.MatchService, maxBytes int64) *MatchHandler {
	return &MatchHandler{matchService: matchService, maxBytes: maxBytes}
}

// Match ranks the catalog against an uploaded image or an imageUrl.
// Query parameters limit and minScore override the configured defaults;
// unparsable values are ignored, a non-finite minScore is a bad request.
func (h *MatchHandler) Match(c *gin.Context) {
	input, _, err := readImageRequest(c, h.maxBytes)
	if err != nil {
		respondError(c, err, "Failed to read request")
		return
	}

	req := &service.MatchRequest{
		Image:  input,
		UserID: middleware.UserID(c),
	}
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 {
		req.TopN = n
	}
	if v, err := strconv.ParseFloat(c.Query("minScore"), 64); err == nil {
		req.MinScore = &v
	}

	resp, err := h.matchService.Match(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to process image and find matches")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"matchId":      resp.MatchID,
		"matches":      resp.Matches,
		"queryImage":   resp.QueryImage,
		"totalMatches": resp.TotalMatches,
	})
}
