package middleware

import (
	"github.com/gin-gonic/gin"
	"tradegate.io/server/models"
	"tradegate.io/server/pkg/token"
)

const (
	// HeaderWebhookSecret carries the shared secret for command and operator endpoints.
	HeaderWebhookSecret = "X-Tradegate-Webhook-Secret"

	// HeaderTelegramSecret is the header Telegram sets when a webhook is
	// registered with a secret_token.
	HeaderTelegramSecret = "X-Telegram-Bot-Api-Secret-Token"
)

// RequireWebhookSecret creates middleware that requires the shared webhook secret.
//
// This middleware:
// - Reads the secret from X-Tradegate-Webhook-Secret, falling back to the Telegram header
// - Compares it in constant time
// - Rejects every request when no secret is configured
//
// This is a transport-level capability check. Owner identity is checked
// separately by the command processor.
//
// Parameters:
//   - secret: The configured webhook secret
//
// Returns:
//   - Gin middleware handler function
func RequireWebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(HeaderWebhookSecret)
		if provided == "" {
			provided = c.GetHeader(HeaderTelegramSecret)
		}

		if secret == "" || provided == "" || !token.Equal(provided, secret) {
			RespondError(c, models.ErrUnauthorized)
			return
		}

		c.Next()
	}
}
