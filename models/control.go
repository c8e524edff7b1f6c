package models

import "time"

// ControlFlags is a point-in-time copy of the gate state.
//
// PanicOn, SignalsOn and ApproveOn are changed only by owner commands.
// HolidayHalt, WeekendOn and NewsFreezeOn are changed only by the calendar
// policy evaluator.
type ControlFlags struct {
	PanicOn       bool      `json:"panic_on"`
	SignalsOn     bool      `json:"signals_on"`
	ApproveOn     bool      `json:"approve_on"`
	HolidayHalt   bool      `json:"holiday_halt"`
	HolidayReason string    `json:"holiday_reason,omitempty"`
	WeekendOn     bool      `json:"weekend_on"`
	NewsFreezeOn  bool      `json:"news_freeze_on"`
	FreezeTag     string    `json:"freeze_tag,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
	UpdatedBy     string    `json:"updated_by,omitempty"`
}

// DefaultControlFlags returns the flags a freshly started host begins with.
func DefaultControlFlags() ControlFlags {
	return ControlFlags{SignalsOn: true}
}

// StatusResponse is returned by the status query interface.
type StatusResponse struct {
	Lease   StatusLease   `json:"lease"`
	Control StatusControl `json:"control"`
}

// StatusLease is the lease part of a status response.
type StatusLease struct {
	Mode        Mode     `json:"mode"`
	OwnerHostID string   `json:"owner_host_id"`
	HostKind    HostKind `json:"host_kind"`
}

// StatusControl is the control part of a status response.
type StatusControl struct {
	PanicOn      bool `json:"panic_on"`
	SignalsOn    bool `json:"signals_on"`
	ApproveOn    bool `json:"approve_on"`
	HolidayHalt  bool `json:"holiday_halt"`
	WeekendOn    bool `json:"weekend_on"`
	NewsFreezeOn bool `json:"news_freeze_on"`
}
