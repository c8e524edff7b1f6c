// Package logging provides structured logging utilities for the tradegate server.
package logging

import (
	"time"

	"go.uber.org/zap"
	"tradegate.io/server/models"
)

// Standard field names for consistent logging across the application.
const (
	FieldHostID       = "host_id"
	FieldHostKind     = "host_kind"
	FieldOwnerHostID  = "owner_host_id"
	FieldMode         = "mode"
	FieldFencingToken = "fencing_token"

	// FieldSenderID is the chat identity that issued an owner command.
	FieldSenderID = "sender_id"
	FieldCommand  = "command"

	// FieldReason is a gate or command rejection reason.
	FieldReason = "reason"

	FieldSymbol    = "symbol"
	FieldTimeframe = "timeframe"
	FieldSignalKey = "signal_hash"

	// FieldRequestID is a unique identifier for each HTTP request.
	FieldRequestID = "request_id"

	// FieldDuration is the duration of an operation in milliseconds.
	FieldDuration = "duration_ms"

	FieldStatusCode = "status_code"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldRemoteAddr = "remote_addr"
	FieldUserAgent  = "user_agent"

	// FieldComponent identifies the component or service generating the log.
	FieldComponent = "component"

	// FieldOperation identifies the specific operation being performed.
	FieldOperation = "operation"

	FieldError = "error"
)

// Host returns the fields identifying a host.
func Host(hostID string, kind models.HostKind) []zap.Field {
	return []zap.Field{
		zap.String(FieldHostID, hostID),
		zap.String(FieldHostKind, string(kind)),
	}
}

// Lease returns the fields describing a lease record.
func Lease(l *models.Lease) zap.Field {
	if l == nil {
		return zap.String(FieldOwnerHostID, "")
	}
	return zap.Dict("lease",
		zap.String(FieldOwnerHostID, l.OwnerHostID),
		zap.String(FieldHostKind, string(l.HostKind)),
		zap.String(FieldMode, string(l.Mode)),
		zap.Int64(FieldFencingToken, l.FencingToken),
		zap.Time("last_heartbeat", l.LastHeartbeat),
	)
}

// Mode returns a mode field.
func Mode(m models.Mode) zap.Field {
	return zap.String(FieldMode, string(m))
}

// Reason returns a reason field.
func Reason(reason string) zap.Field {
	return zap.String(FieldReason, reason)
}

// Duration returns an elapsed-time field in milliseconds.
func Duration(d time.Duration) zap.Field {
	return zap.Int64(FieldDuration, d.Milliseconds())
}

// Component names the subsystem writing the log.
func Component(name string) zap.Field {
	return zap.String(FieldComponent, name)
}
