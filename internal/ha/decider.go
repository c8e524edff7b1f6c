package ha

import (
	"time"

	"tradegate.io/server/models"
)

// Decision is the outcome of one failover decision.
type Decision struct {
	// Mode is the next local mode.
	Mode models.Mode

	// ShouldWrite is true when the host must write the lease this tick.
	ShouldWrite bool

	// FencingToken is the token to write (or the observed token when not writing).
	FencingToken int64

	Reason DecisionReason
}

// Decide returns the next local mode given the current lease.
//
// Rules, first match wins:
//  0. active host observing a newer fencing token than it last wrote: passive
//  1. no lease: claim with token 1
//  2. lease owned by this host: renew, token unchanged
//  3. fresh lease owned by another host: passive, no write
//  4. stale lease: take over with token+1
func Decide(current *models.Lease, local LocalState, now time.Time) Decision {
	if current != nil && local.Mode == models.ModeActive && current.FencingToken > local.LastToken {
		return Decision{Mode: models.ModePassive, FencingToken: current.FencingToken, Reason: ReasonSuperseded}
	}

	if current == nil {
		return Decision{Mode: models.ModeActive, ShouldWrite: true, FencingToken: 1, Reason: ReasonClaim}
	}

	if current.OwnerHostID == local.HostID {
		return Decision{Mode: models.ModeActive, ShouldWrite: true, FencingToken: current.FencingToken, Reason: ReasonRenew}
	}

	if !current.IsStale(now) {
		return Decision{Mode: models.ModePassive, FencingToken: current.FencingToken, Reason: ReasonFollow}
	}

	return Decision{Mode: models.ModeActive, ShouldWrite: true, FencingToken: current.FencingToken + 1, Reason: ReasonTakeover}
}
