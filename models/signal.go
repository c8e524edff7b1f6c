package models

// Block reasons returned by the signal gate. These are the only reason values
// the signal intake interface ever reports.
const (
	ReasonPassive      = "passive"
	ReasonSignalsOff   = "signals_off"
	ReasonPanicOn      = "panic_on"
	ReasonHolidayHalt  = "holiday_halt"
	ReasonWeekendOn    = "weekend_on"
	ReasonNewsFreezeOn = "news_freeze_on"
)

// Signal is one inbound trading alert.
type Signal struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Timestamp string `json:"timestamp"`
	ID        string `json:"id,omitempty"`

	// Raw is the request body the signal was parsed from.
	Raw []byte `json:"-"`
}

// SignalResponse is returned by the signal intake interface.
type SignalResponse struct {
	Accepted  bool    `json:"accepted"`
	Reason    *string `json:"reason"`
	Duplicate bool    `json:"duplicate,omitempty"`
	Hash      string  `json:"hash,omitempty"`
}
