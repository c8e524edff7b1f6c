package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"tradegate.io/server/internal/control"
	"tradegate.io/server/internal/hooks"
	"tradegate.io/server/internal/logging"
	"tradegate.io/server/internal/ratelimit"
	"tradegate.io/server/models"
)

const owner = "1001"

type fixedLease models.LeaseSnapshot

func (f fixedLease) Snapshot() models.LeaseSnapshot { return models.LeaseSnapshot(f) }

type fakeStandby struct {
	pauses  int
	resumes int
	err     error
}

func (f *fakeStandby) Pause(ctx context.Context) (bool, error) {
	f.pauses++
	return f.err == nil, f.err
}

func (f *fakeStandby) Resume(ctx context.Context) (bool, error) {
	f.resumes++
	return f.err == nil, f.err
}

func (f *fakeStandby) Status() hooks.Status {
	return hooks.Status{AutoPause: true, HostKind: models.HostKindLocal}
}

type harness struct {
	proc    *Processor
	state   *control.State
	standby *fakeStandby
	limiter *ratelimit.Limiter
	clock   time.Time
}

func newHarness(t *testing.T, perWindow int) *harness {
	t.Helper()
	h := &harness{
		state:   control.NewState(models.DefaultControlFlags(), nil, zap.NewNop()),
		standby: &fakeStandby{},
		limiter: ratelimit.NewLimiter(ratelimit.Config{CommandsPerWindow: perWindow, CommandWindow: time.Minute}),
		clock:   time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
	}
	h.limiter.SetClock(func() time.Time { return h.clock })
	t.Cleanup(h.limiter.Stop)

	lease := fixedLease{OwnerHostID: "local-a", HostKind: models.HostKindLocal, Mode: models.ModeActive, HeartbeatAgeSeconds: 4, FencingToken: 7}
	h.proc = NewProcessor(owner, h.state, lease, h.standby, h.limiter, zap.NewNop())
	return h
}

func (h *harness) send(command string, args ...string) models.CommandResponse {
	return h.proc.Handle(context.Background(), models.OwnerCommand{SenderID: owner, Command: command, Args: args})
}

func TestHandle_Unauthorized(t *testing.T) {
	h := newHarness(t, 20)
	before := h.state.Snapshot()

	resp := h.proc.Handle(context.Background(), models.OwnerCommand{SenderID: "999", Command: "signals", Args: []string{"off"}})

	assert.False(t, resp.OK)
	assert.Equal(t, models.CommandReasonUnauthorized, resp.Reason)
	assert.Equal(t, before, h.state.Snapshot())
}

func TestHandle_NoOwnerConfiguredRejectsEveryone(t *testing.T) {
	h := newHarness(t, 20)
	h.proc.ownerID = ""

	resp := h.proc.Handle(context.Background(), models.OwnerCommand{SenderID: "", Command: "panic_flat"})
	assert.Equal(t, models.CommandReasonUnauthorized, resp.Reason)
	assert.False(t, h.state.Snapshot().PanicOn)
}

func TestHandle_FlagCommands(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    []string
		check   func(t *testing.T, f models.ControlFlags)
	}{
		{"panic flat", "/panic_flat", nil, func(t *testing.T, f models.ControlFlags) { assert.True(t, f.PanicOn) }},
		{"signals off inline", "/signals off", nil, func(t *testing.T, f models.ControlFlags) { assert.False(t, f.SignalsOn) }},
		{"signals off args", "signals", []string{"OFF"}, func(t *testing.T, f models.ControlFlags) { assert.False(t, f.SignalsOn) }},
		{"approve on", "/APPROVE", []string{"on"}, func(t *testing.T, f models.ControlFlags) { assert.True(t, f.ApproveOn) }},
		{"bot suffix", "/approve@ktw_bot on", nil, func(t *testing.T, f models.ControlFlags) { assert.True(t, f.ApproveOn) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 20)
			resp := h.send(tt.command, tt.args...)
			require.True(t, resp.OK, resp.Message)
			tt.check(t, h.state.Snapshot())
			assert.Equal(t, Actor, h.state.Snapshot().UpdatedBy)
		})
	}
}

func TestHandle_PanicOffClearsPanic(t *testing.T) {
	h := newHarness(t, 20)
	require.True(t, h.send("panic_flat").OK)
	require.True(t, h.send("panic_off").OK)
	assert.False(t, h.state.Snapshot().PanicOn)
}

func TestHandle_InvalidCommands(t *testing.T) {
	for _, text := range []string{"/launch", "signals maybe", "approve", "render", "render reboot", "host everything", ""} {
		t.Run(text, func(t *testing.T) {
			h := newHarness(t, 20)
			before := h.state.Snapshot()

			resp := h.send(text)
			assert.False(t, resp.OK)
			assert.Equal(t, models.CommandReasonInvalidCommand, resp.Reason)
			assert.NotEmpty(t, resp.Message)
			assert.Equal(t, before, h.state.Snapshot())
		})
	}
}

func TestHandle_HostWhoIsReadOnly(t *testing.T) {
	h := newHarness(t, 20)
	before := h.state.Snapshot()

	for _, text := range []string{"/host who", "host"} {
		resp := h.send(text)
		require.True(t, resp.OK)
		snap, ok := resp.Data.(models.LeaseSnapshot)
		require.True(t, ok)
		assert.Equal(t, "local-a", snap.OwnerHostID)
		assert.EqualValues(t, 4, snap.HeartbeatAgeSeconds)
	}
	assert.Equal(t, before, h.state.Snapshot())
}

func TestHandle_Render(t *testing.T) {
	h := newHarness(t, 20)

	resp := h.send("/render status")
	require.True(t, resp.OK)
	assert.IsType(t, hooks.Status{}, resp.Data)

	require.True(t, h.send("/render pause").OK)
	require.True(t, h.send("/render resume").OK)
	assert.Equal(t, 1, h.standby.pauses)
	assert.Equal(t, 1, h.standby.resumes)

	h.standby.err = errors.New("boom")
	resp = h.send("/render pause")
	assert.True(t, resp.OK)
	assert.Contains(t, resp.Message, "failed")
}

func TestHandle_Help(t *testing.T) {
	h := newHarness(t, 20)
	for _, text := range []string{"/help", "/start", "HELP"} {
		resp := h.send(text)
		assert.True(t, resp.OK)
		assert.Equal(t, HelpText, resp.Message)
	}
}

func TestHandle_RateLimitBoundary(t *testing.T) {
	h := newHarness(t, 3)

	for i := 0; i < 3; i++ {
		require.True(t, h.send("help").OK, "command %d", i+1)
	}

	resp := h.send("/signals off")
	assert.False(t, resp.OK)
	assert.Equal(t, models.CommandReasonRateLimited, resp.Reason)
	assert.True(t, h.state.Snapshot().SignalsOn, "rate limited command must not mutate")

	// Denied commands still count; the window is not reset.
	h.clock = h.clock.Add(30 * time.Second)
	assert.Equal(t, models.CommandReasonRateLimited, h.send("help").Reason)

	h.clock = h.clock.Add(31 * time.Second)
	assert.True(t, h.send("help").OK)
}

func TestHandle_UnauthorizedDoesNotConsumeOwnerBudget(t *testing.T) {
	h := newHarness(t, 1)
	for i := 0; i < 5; i++ {
		h.proc.Handle(context.Background(), models.OwnerCommand{SenderID: "intruder", Command: "help"})
	}
	assert.True(t, h.send("help").OK)
}

func TestHandle_LogsThroughRequestLogger(t *testing.T) {
	h := newHarness(t, 20)
	core, logs := observer.New(zap.InfoLevel)
	ctx := logging.WithLogger(context.Background(), zap.New(core).With(zap.String(logging.FieldRequestID, "req-9")))

	h.proc.Handle(ctx, models.OwnerCommand{SenderID: "999", Command: "help"})

	entries := logs.FilterMessage("command from non-owner rejected").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-9", fields[logging.FieldRequestID])
	assert.Equal(t, "999", fields[logging.FieldSenderID])
	assert.Equal(t, "command", fields[logging.FieldComponent])
}
