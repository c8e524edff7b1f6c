package sdk

import (
	"errors"
	"fmt"
	"time"
)

// Common SDK errors that clients can check for specific error handling.
var (
	// ErrInvalidConfig indicates the client configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid client configuration")

	// ErrNoBaseURLs indicates no host URLs were provided.
	ErrNoBaseURLs = errors.New("no base URLs provided")

	// ErrAllHostsFailed indicates every host is unreachable.
	ErrAllHostsFailed = errors.New("all tradegate hosts failed")

	// ErrNoActiveHost indicates no host reported itself active.
	ErrNoActiveHost = errors.New("no active host found")

	// ErrUnauthorized indicates the provided secret or signature was rejected.
	ErrUnauthorized = errors.New("unauthorized: invalid credentials")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrRateLimited indicates the request was rate limited by the server.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrServerError indicates an internal server error occurred.
	ErrServerError = errors.New("internal server error")

	// ErrBadRequest indicates the request was malformed or invalid.
	ErrBadRequest = errors.New("bad request")

	// ErrAmbiguous indicates a command reached a host but its outcome is
	// unknown. Check /api/v1/status before sending it again.
	ErrAmbiguous = errors.New("command outcome unknown")

	// ErrMissingAuth indicates required authentication credentials were not provided.
	ErrMissingAuth = errors.New("missing authentication credentials")
)

// RateLimitError is returned for 429 answers. errors.Is(err, ErrRateLimited)
// holds for it.
type RateLimitError struct {
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s (retry after %s)", ErrRateLimited, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s", ErrRateLimited, e.Message)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
