package control

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"tradegate.io/server/models"
)

type recordingPersister struct {
	mu    sync.Mutex
	saved []models.ControlFlags
	err   error
}

func (p *recordingPersister) SaveFlags(flags models.ControlFlags) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, flags)
	return p.err
}

func TestState_SettersReportChange(t *testing.T) {
	p := &recordingPersister{}
	s := NewState(models.DefaultControlFlags(), p, zap.NewNop())
	at := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	assert.True(t, s.SetPanic(true, "owner-1"))
	assert.False(t, s.SetPanic(true, "owner-1"), "repeat is a no-op")
	assert.False(t, s.SetSignals(true, "owner-1"), "signals default on")
	assert.True(t, s.SetSignals(false, "owner-1"))
	assert.True(t, s.SetApproved(true, "owner-1"))

	flags := s.Snapshot()
	assert.True(t, flags.PanicOn)
	assert.False(t, flags.SignalsOn)
	assert.True(t, flags.ApproveOn)
	assert.Equal(t, "owner-1", flags.UpdatedBy)
	assert.Equal(t, at, flags.UpdatedAt)

	assert.Len(t, p.saved, 3, "only changes are persisted")
}

func TestState_CalendarFlags(t *testing.T) {
	s := NewState(models.DefaultControlFlags(), nil, zap.NewNop())

	assert.True(t, s.SetHoliday(true, "holiday:NSE@2024-03-08", "calendar"))
	assert.False(t, s.SetHoliday(true, "holiday:NSE@2024-03-08", "calendar"))
	assert.True(t, s.SetHoliday(true, "holiday:NSE,BSE@2024-03-08", "calendar"), "reason change counts")

	assert.True(t, s.SetNewsFreeze(true, "RBI", "calendar"))
	assert.True(t, s.SetWeekend(true, "calendar"))

	flags := s.Snapshot()
	assert.True(t, flags.HolidayHalt)
	assert.Equal(t, "holiday:NSE,BSE@2024-03-08", flags.HolidayReason)
	assert.Equal(t, "RBI", flags.FreezeTag)

	assert.True(t, s.SetHoliday(false, "ignored", "calendar"))
	assert.True(t, s.SetNewsFreeze(false, "ignored", "calendar"))
	flags = s.Snapshot()
	assert.Empty(t, flags.HolidayReason)
	assert.Empty(t, flags.FreezeTag)
}

func TestState_PersistFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewState(models.DefaultControlFlags(), &recordingPersister{err: errors.New("disk full")}, zap.New(core))

	assert.True(t, s.SetPanic(true, "owner-1"))
	assert.True(t, s.Snapshot().PanicOn, "in-memory state still changes")
	assert.Equal(t, 1, logs.FilterMessage("failed to persist control flags").Len())
}

func TestState_ConcurrentAccess(t *testing.T) {
	s := NewState(models.DefaultControlFlags(), nil, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.SetSignals(i%2 == 0, "owner-1")
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
		}()
	}
	wg.Wait()
}

// gatedPersister blocks its first save until released.
type gatedPersister struct {
	recordingPersister
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *gatedPersister) SaveFlags(flags models.ControlFlags) error {
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.entered)
		<-p.release
	}
	return p.recordingPersister.SaveFlags(flags)
}

func (p *gatedPersister) last() models.ControlFlags {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved[len(p.saved)-1]
}

func TestState_SlowSaveCannotOverwriteNewerFlags(t *testing.T) {
	p := &gatedPersister{entered: make(chan struct{}), release: make(chan struct{})}
	s := NewState(models.DefaultControlFlags(), p, zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.SetWeekend(true, "calendar")
	}()
	<-p.entered

	// the weekend snapshot still has signals on and is stuck in SaveFlags
	go func() {
		defer wg.Done()
		s.SetSignals(false, "owner-1")
	}()
	time.Sleep(20 * time.Millisecond)
	close(p.release)
	wg.Wait()

	live := s.Snapshot()
	stored := p.last()
	assert.False(t, live.SignalsOn)
	assert.Equal(t, live, stored, "stored flags must match the live flags")
}

func TestState_ConcurrentWritersPersistLatest(t *testing.T) {
	p := &recordingPersister{}
	s := NewState(models.DefaultControlFlags(), p, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.SetSignals(i%2 == 0, "owner-1")
		}(i)
		go func(i int) {
			defer wg.Done()
			s.SetWeekend(i%3 == 0, "calendar")
		}(i)
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if assert.NotEmpty(t, p.saved) {
		assert.Equal(t, s.Snapshot(), p.saved[len(p.saved)-1])
	}
}
