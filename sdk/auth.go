package sdk

import (
	"net/http"

	"tradegate.io/server/pkg/token"
)

// Authentication header constants matching the server expectations.
const (
	// HeaderSignature carries the hex HMAC-SHA256 of a signal body.
	HeaderSignature = "X-Signature"

	// HeaderWebhookSecret carries the shared webhook secret.
	HeaderWebhookSecret = "X-Tradegate-Webhook-Secret"

	// HeaderActiveOwner names the lease owner on every API response.
	HeaderActiveOwner = "X-Tradegate-Active-Owner"
)

// AuthType represents the type of authentication to use for a request.
type AuthType int

const (
	// AuthTypeNone indicates no authentication headers should be added.
	AuthTypeNone AuthType = iota

	// AuthTypeSignature signs the request body with the signal secret.
	AuthTypeSignature

	// AuthTypeWebhook sends the shared webhook secret.
	AuthTypeWebhook
)

// addAuthHeaders adds the appropriate authentication headers to the request based on the auth type.
// Returns an error if the required credentials are not available.
func (c *Client) addAuthHeaders(req *http.Request, body []byte, authType AuthType) error {
	switch authType {
	case AuthTypeSignature:
		if c.SignalSecret == "" {
			return ErrMissingAuth
		}
		req.Header.Set(HeaderSignature, token.Sign(body, c.SignalSecret))
	case AuthTypeWebhook:
		if c.WebhookSecret == "" {
			return ErrMissingAuth
		}
		req.Header.Set(HeaderWebhookSecret, c.WebhookSecret)
	case AuthTypeNone:
	}

	return nil
}
