package middleware

import "github.com/gin-gonic/gin"

// Context keys for request-scoped values set by middleware.
const (
	// ContextKeyRequestID stores the unique request ID for tracing.
	ContextKeyRequestID = "request_id"

	// ContextKeyLogger stores the request-scoped logger.
	ContextKeyLogger = "logger"

	// ContextKeyRawBody stores the request body read by VerifySignature.
	ContextKeyRawBody = "raw_body"
)

// GetRawBody returns the body captured by VerifySignature.
// Returns nil if the middleware did not run.
func GetRawBody(c *gin.Context) []byte {
	if val, exists := c.Get(ContextKeyRawBody); exists {
		if body, ok := val.([]byte); ok {
			return body
		}
	}
	return nil
}
