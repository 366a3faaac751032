package insights

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/lifescope-insights/internal/apperr"
)

// Response bodies that hide the underlying cause.
const (
	msgNoData      = "no data for this date"
	msgNotFound    = "not found"
	msgTimeout     = "report generation timed out"
	msgUnavailable = "report temporarily unavailable"
	msgCancelled   = "request cancelled"
	msgInternal    = "internal error"
)

// statusFor maps a service error onto an HTTP status and response message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, apperr.ErrNoData):
		return http.StatusNotFound, msgNoData
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, apperr.ErrTimeout):
		return http.StatusGatewayTimeout, msgTimeout
	case errors.Is(err, apperr.ErrGenerationFailed):
		return http.StatusServiceUnavailable, msgUnavailable
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, msgCancelled
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// fail logs err and answers with its mapped status.
func (h *Handler) fail(c *gin.Context, err error, logMsg string, userID ...uint) {
	status, msg := statusFor(err)

	event := h.log.Debug()
	if status >= http.StatusInternalServerError {
		event = h.log.Error()
	}
	if len(userID) > 0 {
		event = event.Uint("user_id", userID[0])
	}
	event.Err(err).Int("status", status).Str("path", c.FullPath()).Msg(logMsg)

	h.errorResponse(c, status, msg)
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
