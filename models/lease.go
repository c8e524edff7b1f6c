package models

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the runtime role of a host.
type Mode string

const (
	// ModeActive indicates this host holds the lease and may act on signals.
	ModeActive Mode = "active"

	// ModePassive indicates this host is standing by.
	ModePassive Mode = "passive"
)

// HostKind identifies where a host runs.
type HostKind string

const (
	// HostKindLocal is the locally-run instance.
	HostKindLocal HostKind = "local"

	// HostKindCloud is the cloud-hosted standby.
	HostKindCloud HostKind = "cloud"
)

// ParseHostKind converts a configuration string to a HostKind.
// "render" is accepted as an alias for the cloud standby.
func ParseHostKind(s string) (HostKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return HostKindLocal, nil
	case "cloud", "render":
		return HostKindCloud, nil
	default:
		return "", fmt.Errorf("unknown host kind %q: must be local or cloud", s)
	}
}

// Lease is the single shared record naming the host that is currently
// authoritative. Stores read and write it as one atomic unit.
type Lease struct {
	// OwnerHostID is the stable identifier of the claiming host.
	OwnerHostID string `json:"owner_host_id"`

	// HostKind is the kind of the owning host.
	HostKind HostKind `json:"host_kind"`

	// LastHeartbeat is the time of the most recent successful write by the owner.
	LastHeartbeat time.Time `json:"last_heartbeat"`

	// TTLSeconds is the validity window of a heartbeat.
	TTLSeconds int `json:"ttl_seconds"`

	// Mode is the mode the owner last wrote.
	Mode Mode `json:"mode"`

	// FencingToken increases on every takeover. A host that observes a token
	// greater than the one it last wrote has been superseded.
	FencingToken int64 `json:"fencing_token"`
}

// TTL returns the lease validity window as a duration.
func (l *Lease) TTL() time.Duration {
	return time.Duration(l.TTLSeconds) * time.Second
}

// Age returns how long ago the owner last heartbeated.
func (l *Lease) Age(now time.Time) time.Duration {
	return now.Sub(l.LastHeartbeat)
}

// IsStale reports whether now - last_heartbeat exceeds the ttl.
func (l *Lease) IsStale(now time.Time) bool {
	return l.Age(now) > l.TTL()
}

// LeaseSnapshot is the read-only view of the lease reported to operators.
type LeaseSnapshot struct {
	OwnerHostID         string   `json:"owner_host_id"`
	HostKind            HostKind `json:"host_kind"`
	Mode                Mode     `json:"mode"`
	HeartbeatAgeSeconds int64    `json:"heartbeat_age_seconds"`
	FencingToken        int64    `json:"fencing_token"`
	LocalHostID         string   `json:"local_host_id"`
	LocalHostKind       HostKind `json:"local_host_kind"`
}

// CanReplace reports whether a conditional store should accept l over the
// currently stored record: a strictly newer fencing token wins, an equal token
// is accepted only from the same owner (renewal or release).
func (l *Lease) CanReplace(stored *Lease) bool {
	if stored == nil {
		return true
	}
	if l.FencingToken > stored.FencingToken {
		return true
	}
	return l.FencingToken == stored.FencingToken && l.OwnerHostID == stored.OwnerHostID
}
