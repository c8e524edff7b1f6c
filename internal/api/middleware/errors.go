package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"tradegate.io/server/internal/metrics"
	"tradegate.io/server/models"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	// Error is the error code (e.g., "unauthorized", "invalid_request").
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// RetryAfter is set on 429 responses, in seconds.
	RetryAfter int `json:"retry_after,omitempty"`

	// RequestID is the unique request ID for tracing.
	RequestID string `json:"request_id,omitempty"`
}

// RateLimitError carries the wait time of a rate limit rejection.
type RateLimitError struct {
	Scope      string
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded (" + e.Scope + ")"
}

func (e *RateLimitError) Unwrap() error {
	return models.ErrRateLimitExceeded
}

// RespondError maps err to a status and error body and aborts the chain.
// This is the only place API errors are rendered.
//
// Wrapped errors are matched with errors.Is. Messages stay generic except
// for signature failures, whose reason tells the sender what to fix.
//
// Parameters:
//   - c: Gin context
//   - err: Error from the models package or other source
func RespondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidSignature):
		abortWithError(c, http.StatusUnauthorized, ErrorResponse{Error: "auth_failed", Message: err.Error()})

	case errors.Is(err, models.ErrUnauthorized):
		abortWithError(c, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Authentication failed"})

	case errors.Is(err, models.ErrInvalidRequest):
		abortWithError(c, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Invalid request parameters"})

	case errors.Is(err, models.ErrNotFound):
		abortWithError(c, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Resource not enabled"})

	case errors.Is(err, models.ErrPayloadTooLarge):
		abortWithError(c, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload_too_large", Message: "Payload exceeds size limit"})

	case errors.Is(err, models.ErrRateLimitExceeded):
		resp := ErrorResponse{Error: "rate_limit_exceeded", Message: "Rate limit exceeded"}
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			resp.RetryAfter = rl.RetryAfter
			c.Header("Retry-After", strconv.Itoa(rl.RetryAfter))
		}
		abortWithError(c, http.StatusTooManyRequests, resp)

	case errors.Is(err, models.ErrStoreUnavailable), errors.Is(err, models.ErrServiceUnavailable):
		abortWithError(c, http.StatusServiceUnavailable, ErrorResponse{Error: "service_unavailable", Message: "Service temporarily unavailable"})

	default:
		GetLogger(c).Error("unhandled error", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "An internal error occurred"})
	}
}

func abortWithError(c *gin.Context, status int, resp ErrorResponse) {
	metrics.HTTPErrorsTotal.WithLabelValues(routeLabel(c), resp.Error).Inc()
	resp.RequestID = GetRequestID(c)
	c.AbortWithStatusJSON(status, resp)
}
