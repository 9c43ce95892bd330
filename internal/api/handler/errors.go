package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/vismatch/internal/domain"
	"github.com/timmy/vismatch/internal/logger"
)

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrImageDecode):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrCatalogLoad):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {success:false, error} and logs server-side failures.
// Client errors carry the error text; 5xx responses get msg only.
func respondError(c *gin.Context, err error, msg string) {
	status := StatusFor(err)
	body := gin.H{"success": false, "error": msg}
	switch {
	case status < http.StatusInternalServerError:
		body["error"] = err.Error()
	case errors.Is(err, domain.ErrTimeout):
		body["retryable"] = true
	}
	if status >= http.StatusInternalServerError {
		logger.CtxError(c.Request.Context(), "%s: %v", msg, err)
	}
	c.JSON(status, body)
}
