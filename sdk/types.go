package sdk

import (
	"time"

	"tradegate.io/server/models"
)

// APIError is the error body returned by tradegate hosts.
type APIError struct {
	// Error is the error code (e.g. "auth_failed", "rate_limit_exceeded").
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// RequestID identifies the request in the host's logs.
	RequestID string `json:"request_id,omitempty"`
}

// envelope is the wrapper used by health, lease and journal responses.
type envelope[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

// ActiveInfo is the body of GET /health/active.
type ActiveInfo struct {
	IsActive    bool            `json:"is_active"`
	HostID      string          `json:"host_id"`
	HostKind    models.HostKind `json:"host_kind"`
	OwnerHostID string          `json:"owner_host_id,omitempty"`
}

// JournalEntry is one recorded gate outcome.
type JournalEntry struct {
	ID         int64     `json:"id"`
	Hash       string    `json:"hash"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Timestamp  string    `json:"ts"`
	AlertID    string    `json:"alert_id"`
	HostID     string    `json:"host_id"`
	Accepted   bool      `json:"accepted"`
	Duplicate  bool      `json:"duplicate"`
	Reason     string    `json:"reason,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// HostStatus is the status of one configured host.
type HostStatus struct {
	// URL is the host's base URL.
	URL string

	// Status is nil when the host could not be queried.
	Status *models.StatusResponse

	// ActiveOwner is the lease owner the host reported in its response headers.
	ActiveOwner string

	// Err is set when the host could not be queried.
	Err error
}
