package ha

import "tradegate.io/server/models"

// ValidateMode ensures the provided mode is one of the supported values.
func ValidateMode(mode models.Mode) bool {
	return mode == models.ModeActive || mode == models.ModePassive
}

// LocalState is what a host knows about itself when deciding.
type LocalState struct {
	HostID   string
	HostKind models.HostKind

	// Mode is the mode currently in effect on this host.
	Mode models.Mode

	// LastToken is the fencing token of this host's last successful write.
	LastToken int64
}

// DecisionReason names the rule that produced a decision.
type DecisionReason string

const (
	ReasonClaim      DecisionReason = "claim"
	ReasonRenew      DecisionReason = "renew"
	ReasonFollow     DecisionReason = "follow"
	ReasonTakeover   DecisionReason = "takeover"
	ReasonSuperseded DecisionReason = "superseded"
	ReasonRejected   DecisionReason = "rejected"
	ReasonOutage     DecisionReason = "store_outage"
	ReasonShutdown   DecisionReason = "shutdown"
)
