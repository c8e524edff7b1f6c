package policy

import (
	"context"
	"time"

	"go.uber.org/zap"
	"tradegate.io/server/internal/logging"
	"tradegate.io/server/internal/metrics"
)

// DefaultWatchdogInterval is how often the calendar is re-evaluated.
const DefaultWatchdogInterval = 20 * time.Second

// watchdogActor is recorded as updated_by on calendar flag changes.
const watchdogActor = "calendar"

// CalendarFlags is the part of the control state the watchdog writes.
type CalendarFlags interface {
	SetWeekend(on bool, by string) bool
	SetHoliday(on bool, reason, by string) bool
	SetNewsFreeze(on bool, tag, by string) bool
}

// Watchdog periodically copies the calendar status into the control flags.
type Watchdog struct {
	eval     *Evaluator
	flags    CalendarFlags
	interval time.Duration
	logger   *zap.Logger

	// For testing - allow overriding time functions
	now func() time.Time
}

// NewWatchdog creates a Watchdog. A non-positive interval uses the default.
func NewWatchdog(eval *Evaluator, flags CalendarFlags, interval time.Duration, logger *zap.Logger) *Watchdog {
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}
	return &Watchdog{
		eval:     eval,
		flags:    flags,
		interval: interval,
		logger:   logger.With(logging.Component("calendar_watchdog")),
		now:      time.Now,
	}
}

// Run evaluates immediately, then every interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Check()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check performs one evaluation and logs every flag that changed.
func (w *Watchdog) Check() CalendarStatus {
	status := w.eval.Evaluate(w.now())

	if w.flags.SetWeekend(status.Weekend, watchdogActor) {
		w.transition("weekend_on", status.Weekend, "")
	}
	if w.flags.SetHoliday(status.Holiday, status.HolidayReason, watchdogActor) {
		w.transition("holiday_halt", status.Holiday, status.HolidayReason)
	}
	if w.flags.SetNewsFreeze(status.Freeze, status.FreezeTag, watchdogActor) {
		w.transition("news_freeze_on", status.Freeze, status.FreezeTag)
	}

	return status
}

func (w *Watchdog) transition(flag string, on bool, detail string) {
	state := "off"
	if on {
		state = "on"
	}
	metrics.PolicyFlagChanges.WithLabelValues(flag, state).Inc()
	w.logger.Info("calendar flag changed",
		zap.String("flag", flag),
		zap.String("state", state),
		zap.String("detail", detail),
	)
}
