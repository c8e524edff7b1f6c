package models

import "errors"

// Common error types used throughout tradegate.
// These errors provide semantic meaning and enable consistent error handling
// across the API, the heartbeat loop and the lease stores.

var (
	// ErrLeaseRejected indicates the lease store refused a conditional write,
	// usually because another host already wrote a newer fencing token.
	ErrLeaseRejected = errors.New("lease write rejected")

	// ErrStoreUnavailable indicates the lease store could not be read or written.
	// HTTP equivalent: 503 Service Unavailable
	ErrStoreUnavailable = errors.New("lease store unavailable")

	// ErrUnauthorized indicates the request lacks valid authentication credentials.
	// HTTP equivalent: 401 Unauthorized
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidSignature indicates the signal signature did not verify.
	// HTTP equivalent: 401 Unauthorized
	ErrInvalidSignature = errors.New("invalid signal signature")

	// ErrInvalidRequest indicates the request body or parameters are invalid.
	// HTTP equivalent: 400 Bad Request
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidCommand indicates malformed command arguments. It is answered
	// in-band with ok=false, never as an HTTP error.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrPayloadTooLarge indicates the request body exceeds size limits.
	// HTTP equivalent: 413 Payload Too Large
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrRateLimitExceeded indicates too many requests from this client.
	// HTTP equivalent: 429 Too Many Requests
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrNotFound indicates the requested resource is not enabled on this host.
	// HTTP equivalent: 404 Not Found
	ErrNotFound = errors.New("not found")

	// ErrServiceUnavailable indicates the service is temporarily unavailable.
	// HTTP equivalent: 503 Service Unavailable
	ErrServiceUnavailable = errors.New("service unavailable")
)
