package models

import "time"

// Structured reasons for rejected owner commands.
const (
	CommandReasonUnauthorized   = "unauthorized"
	CommandReasonRateLimited    = "rate_limited"
	CommandReasonInvalidCommand = "invalid_command"
)

// OwnerCommand is one inbound control message. It is never persisted.
type OwnerCommand struct {
	SenderID   string    `json:"sender_id" binding:"required"`
	Command    string    `json:"command" binding:"required"`
	Args       []string  `json:"args,omitempty"`
	ReceivedAt time.Time `json:"-"`
}

// CommandResponse is the reply to an owner command.
type CommandResponse struct {
	OK      bool        `json:"ok"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}
