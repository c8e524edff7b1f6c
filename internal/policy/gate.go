// Package policy decides whether an inbound trading signal may be acted on.
//
// The gate combines the local failover mode with the control flags. The
// calendar evaluator and its watchdog keep the weekend, holiday and news
// freeze flags current.
package policy

import (
	"time"

	"go.uber.org/zap"
	"tradegate.io/server/internal/logging"
	"tradegate.io/server/internal/metrics"
	"tradegate.io/server/models"
)

// Decision is the outcome of evaluating one signal.
type Decision struct {
	Accepted bool

	// Reason is empty when accepted, otherwise one of the models.Reason* values.
	Reason string
}

// Evaluate applies the gate rules in order; the first match wins:
// passive, signals_off, panic_on, holiday_halt, weekend_on, news_freeze_on.
func Evaluate(mode models.Mode, flags models.ControlFlags) Decision {
	switch {
	case mode != models.ModeActive:
		return blocked(models.ReasonPassive)
	case !flags.SignalsOn:
		return blocked(models.ReasonSignalsOff)
	case flags.PanicOn:
		return blocked(models.ReasonPanicOn)
	case flags.HolidayHalt:
		return blocked(models.ReasonHolidayHalt)
	case flags.WeekendOn:
		return blocked(models.ReasonWeekendOn)
	case flags.NewsFreezeOn:
		return blocked(models.ReasonNewsFreezeOn)
	}
	return Decision{Accepted: true}
}

func blocked(reason string) Decision {
	return Decision{Reason: reason}
}

// ModeSource reports the cached local mode.
type ModeSource interface {
	Mode() models.Mode
}

// FlagSource reports the current control flags.
type FlagSource interface {
	Snapshot() models.ControlFlags
}

// Gate evaluates signals against live mode and flags.
type Gate struct {
	modes  ModeSource
	flags  FlagSource
	logger *zap.Logger
}

// NewGate creates a Gate.
func NewGate(modes ModeSource, flags FlagSource, logger *zap.Logger) *Gate {
	return &Gate{modes: modes, flags: flags, logger: logger}
}

// Admit evaluates sig and records the outcome.
func (g *Gate) Admit(sig models.Signal) Decision {
	d := Evaluate(g.modes.Mode(), g.flags.Snapshot())

	if d.Accepted {
		metrics.SignalDecisions.WithLabelValues("accepted").Inc()
		metrics.LastSignalAccepted.Set(float64(time.Now().Unix()))
		return d
	}

	metrics.SignalDecisions.WithLabelValues(d.Reason).Inc()
	g.logger.Info("signal blocked",
		zap.String(logging.FieldSymbol, sig.Symbol),
		zap.String(logging.FieldTimeframe, sig.Timeframe),
		logging.Reason(d.Reason),
	)
	return d
}
