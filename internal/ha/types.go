// Package ha provides lease-based failover between the local host and its
// cloud standby.
//
// This package implements the failover decision function, the per-host
// heartbeat loop that renews or takes over the shared lease, and the
// dispatch of transition hooks when the local mode changes.
package ha

import (
	"context"
	"time"

	"tradegate.io/server/models"
)

const (
	// DefaultHeartbeatInterval is how often a host reads and renews the lease.
	// Default: 15 seconds
	DefaultHeartbeatInterval = 15 * time.Second

	// DefaultLeaseTTL is how long a heartbeat stays valid.
	// Default: 45 seconds (3x heartbeat interval)
	DefaultLeaseTTL = 45 * time.Second

	// MinTTLMultiplier is the floor for ttl expressed in heartbeat intervals.
	MinTTLMultiplier = 3

	// DefaultOutageMultiplier is how many ttl periods an active host tolerates
	// without a successful lease write before demoting itself.
	DefaultOutageMultiplier = 3
)

// LeaseStore is read/write access to the single shared lease record.
//
// Read returns (nil, nil) when no lease has been written yet. Write returns
// an error wrapping models.ErrLeaseRejected when a conditional store refuses
// the record; stores without conditional writes never reject.
type LeaseStore interface {
	Read(ctx context.Context) (*models.Lease, error)
	Write(ctx context.Context, lease models.Lease) error
}

// TransitionHooks are invoked once per local mode change. Implementations
// must be idempotent and must not touch the lease or the control flags.
type TransitionHooks interface {
	OnBecameActive(ctx context.Context) error
	OnBecamePassive(ctx context.Context) error
}

// Config holds configuration for the HA manager.
type Config struct {
	// HostID is this host's stable identifier.
	HostID string

	// HostKind is local or cloud.
	HostKind models.HostKind

	// HeartbeatInterval is how often to read and renew the lease.
	HeartbeatInterval time.Duration

	// LeaseTTL is written into the lease as its validity window.
	// Clamped to at least MinTTLMultiplier x HeartbeatInterval.
	LeaseTTL time.Duration

	// OutageMultiplier is the number of ttl periods an active host keeps its
	// mode while the store is failing.
	OutageMultiplier int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig(hostID string, kind models.HostKind) *Config {
	return &Config{
		HostID:            hostID,
		HostKind:          kind,
		HeartbeatInterval: DefaultHeartbeatInterval,
		LeaseTTL:          DefaultLeaseTTL,
		OutageMultiplier:  DefaultOutageMultiplier,
	}
}

// applyDefaults fills zero values and enforces the ttl floor.
func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = DefaultLeaseTTL
	}
	if floor := c.HeartbeatInterval * MinTTLMultiplier; c.LeaseTTL < floor {
		c.LeaseTTL = floor
	}
	if c.OutageMultiplier <= 0 {
		c.OutageMultiplier = DefaultOutageMultiplier
	}
}

// ttlSeconds is the ttl as written into the lease record.
func (c *Config) ttlSeconds() int {
	secs := int(c.LeaseTTL / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// outageTolerance is how long an active host survives without a successful write.
func (c *Config) outageTolerance() time.Duration {
	return c.LeaseTTL * time.Duration(c.OutageMultiplier)
}
