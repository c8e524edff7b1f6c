// Package command processes owner control commands.
//
// Every command passes three stages in order: owner authentication, per-sender
// rate limiting and parsing. Only the owner flags (panic, signals, approve)
// are ever mutated here; the lease is read from the cached snapshot and never
// written.
package command

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"tradegate.io/server/internal/hooks"
	"tradegate.io/server/internal/logging"
	"tradegate.io/server/internal/metrics"
	"tradegate.io/server/internal/ratelimit"
	"tradegate.io/server/models"
)

// Actor is recorded as updated_by on flags changed through commands.
const Actor = "owner"

// HelpText lists the supported commands.
const HelpText = "Commands:\n" +
	"  host who                  lease and status\n" +
	"  render status|pause|resume\n" +
	"  panic_flat                emergency off (blocks new entries)\n" +
	"  panic_off                 clear panic\n" +
	"  approve on|off            live approval flag\n" +
	"  signals on|off            intake gate"

// OwnerFlags is the subset of control.State the processor writes.
type OwnerFlags interface {
	Snapshot() models.ControlFlags
	SetPanic(on bool, by string) bool
	SetSignals(on bool, by string) bool
	SetApproved(on bool, by string) bool
}

// LeaseView exposes the cached lease.
type LeaseView interface {
	Snapshot() models.LeaseSnapshot
}

// StandbyControl pauses and resumes the cloud standby on demand.
type StandbyControl interface {
	Pause(ctx context.Context) (bool, error)
	Resume(ctx context.Context) (bool, error)
	Status() hooks.Status
}

// Processor handles owner commands.
type Processor struct {
	ownerID string
	flags   OwnerFlags
	lease   LeaseView
	standby StandbyControl
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewProcessor creates a command processor.
//
// Parameters:
//   - ownerID: The only sender allowed to issue commands
//   - flags: Control flag state
//   - lease: Cached lease view
//   - standby: Standby pause/resume control (may be nil)
//   - limiter: Per-sender command limiter
//   - logger: Logger
//
// Returns:
//   - Processor ready to handle commands
func NewProcessor(ownerID string, flags OwnerFlags, lease LeaseView, standby StandbyControl, limiter *ratelimit.Limiter, logger *zap.Logger) *Processor {
	return &Processor{
		ownerID: ownerID,
		flags:   flags,
		lease:   lease,
		standby: standby,
		limiter: limiter,
		logger:  logger,
	}
}

// Handle authenticates, rate limits and executes one command.
func (p *Processor) Handle(ctx context.Context, cmd models.OwnerCommand) models.CommandResponse {
	logger := logging.FromContext(ctx, p.logger).With(
		logging.Component("command"),
		zap.String(logging.FieldSenderID, cmd.SenderID),
	)

	if p.ownerID == "" || strings.TrimSpace(cmd.SenderID) != p.ownerID {
		logger.Warn("command from non-owner rejected")
		return p.reject("unknown", models.CommandReasonUnauthorized, "not authorized")
	}

	if allowed, retryAfter := p.limiter.Allow(ratelimit.BuildKey(cmd.SenderID, ratelimit.LimitTypeCommand), ratelimit.LimitTypeCommand); !allowed {
		logger.Warn("command rate limited", zap.Int("retry_after_seconds", retryAfter))
		return p.reject("unknown", models.CommandReasonRateLimited,
			fmt.Sprintf("slow down, retry in %ds", retryAfter))
	}

	name, args := parse(cmd)
	logger = logger.With(zap.String(logging.FieldCommand, name))

	resp := p.dispatch(ctx, name, args)
	if !resp.OK {
		logger.Info("command failed", zap.String(logging.FieldReason, resp.Reason))
		metrics.CommandsTotal.WithLabelValues(metricName(name), "invalid").Inc()
		return resp
	}

	logger.Info("command executed", zap.Strings("args", args))
	metrics.CommandsTotal.WithLabelValues(name, "ok").Inc()
	return resp
}

func (p *Processor) dispatch(ctx context.Context, name string, args []string) models.CommandResponse {
	switch name {
	case "help", "start":
		return ok(HelpText, nil)

	case "panic_flat":
		p.flags.SetPanic(true, Actor)
		return ok("PANIC ON: new entries will be blocked", p.control())

	case "panic_off":
		p.flags.SetPanic(false, Actor)
		return ok("panic cleared", p.control())

	case "signals":
		on, err := onOff(args)
		if err != nil {
			return invalid("usage: signals on|off")
		}
		p.flags.SetSignals(on, Actor)
		return ok("signals intake -> "+label(on), p.control())

	case "approve":
		on, err := onOff(args)
		if err != nil {
			return invalid("usage: approve on|off")
		}
		p.flags.SetApproved(on, Actor)
		return ok("approve live -> "+label(on), p.control())

	case "host":
		if len(args) > 0 && args[0] != "who" {
			return invalid("usage: host who")
		}
		return ok("lease", p.lease.Snapshot())

	case "render":
		return p.render(ctx, args)
	}

	return invalid(fmt.Sprintf("unknown command %q, try help", name))
}

func (p *Processor) render(ctx context.Context, args []string) models.CommandResponse {
	if p.standby == nil {
		return invalid("standby control is not configured")
	}
	if len(args) != 1 {
		return invalid("usage: render status|pause|resume")
	}

	var (
		called bool
		err    error
		action = args[0]
	)

	switch action {
	case "status":
		return ok("standby hooks", p.standby.Status())
	case "pause":
		called, err = p.standby.Pause(ctx)
	case "resume":
		called, err = p.standby.Resume(ctx)
	default:
		return invalid("usage: render status|pause|resume")
	}

	// A failed hook is reported, not treated as a command error.
	result := "no-op"
	switch {
	case err != nil:
		result = "failed: " + err.Error()
	case called:
		result = "ok"
	}
	return ok(fmt.Sprintf("standby %s -> %s", action, result), map[string]interface{}{
		"called": called,
		"error":  err != nil,
	})
}

func (p *Processor) control() models.StatusControl {
	f := p.flags.Snapshot()
	return models.StatusControl{
		PanicOn:      f.PanicOn,
		SignalsOn:    f.SignalsOn,
		ApproveOn:    f.ApproveOn,
		HolidayHalt:  f.HolidayHalt,
		WeekendOn:    f.WeekendOn,
		NewsFreezeOn: f.NewsFreezeOn,
	}
}

func (p *Processor) reject(name, reason, message string) models.CommandResponse {
	metrics.CommandsTotal.WithLabelValues(name, reason).Inc()
	return models.CommandResponse{OK: false, Reason: reason, Message: message}
}

// parse normalizes the command name and arguments. Arguments may be given
// separately or inline ("/signals on").
func parse(cmd models.OwnerCommand) (string, []string) {
	fields := strings.Fields(strings.ToLower(cmd.Command))
	for _, a := range cmd.Args {
		fields = append(fields, strings.Fields(strings.ToLower(a))...)
	}
	if len(fields) == 0 {
		return "", nil
	}

	name := strings.TrimPrefix(fields[0], "/")
	// Chat clients may append a bot suffix: /signals@bot
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name, fields[1:]
}

func onOff(args []string) (bool, error) {
	if len(args) != 1 {
		return false, models.ErrInvalidCommand
	}
	switch args[0] {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, models.ErrInvalidCommand
}

// metricName keeps the command label bounded to known names.
func metricName(name string) string {
	switch name {
	case "help", "start", "panic_flat", "panic_off", "signals", "approve", "host", "render":
		return name
	}
	return "unknown"
}

func label(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func ok(message string, data interface{}) models.CommandResponse {
	return models.CommandResponse{OK: true, Message: message, Data: data}
}

func invalid(message string) models.CommandResponse {
	return models.CommandResponse{OK: false, Reason: models.CommandReasonInvalidCommand, Message: message}
}
