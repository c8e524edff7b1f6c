// Package control holds the in-memory control flags consulted by the signal
// gate. Owner commands and the calendar watchdog are the only writers.
package control

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"tradegate.io/server/models"
)

// Persister saves a flag snapshot after every change.
type Persister interface {
	SaveFlags(flags models.ControlFlags) error
}

// State is the process-wide control flag set.
type State struct {
	mu      sync.RWMutex
	flags   models.ControlFlags
	version uint64
	persist Persister
	logger  *zap.Logger

	// saveMu orders persistence; saved is the newest version handed to persist.
	saveMu sync.Mutex
	saved  uint64

	// For testing - allow overriding time functions
	now func() time.Time
}

// NewState creates a State starting from initial. persist may be nil.
func NewState(initial models.ControlFlags, persist Persister, logger *zap.Logger) *State {
	return &State{
		flags:   initial,
		persist: persist,
		logger:  logger,
		now:     time.Now,
	}
}

// Snapshot returns a copy of the current flags.
func (s *State) Snapshot() models.ControlFlags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

// SetPanic arms or clears the panic flag. Returns whether anything changed.
func (s *State) SetPanic(on bool, by string) bool {
	return s.update(by, func(f *models.ControlFlags) bool {
		if f.PanicOn == on {
			return false
		}
		f.PanicOn = on
		return true
	})
}

// SetSignals enables or disables signal intake.
func (s *State) SetSignals(on bool, by string) bool {
	return s.update(by, func(f *models.ControlFlags) bool {
		if f.SignalsOn == on {
			return false
		}
		f.SignalsOn = on
		return true
	})
}

// SetApproved sets the owner approval flag.
func (s *State) SetApproved(on bool, by string) bool {
	return s.update(by, func(f *models.ControlFlags) bool {
		if f.ApproveOn == on {
			return false
		}
		f.ApproveOn = on
		return true
	})
}

// SetWeekend sets the weekend halt.
func (s *State) SetWeekend(on bool, by string) bool {
	return s.update(by, func(f *models.ControlFlags) bool {
		if f.WeekendOn == on {
			return false
		}
		f.WeekendOn = on
		return true
	})
}

// SetHoliday sets the holiday halt and its reason. The reason is cleared
// when the halt is lifted.
func (s *State) SetHoliday(on bool, reason, by string) bool {
	if !on {
		reason = ""
	}
	return s.update(by, func(f *models.ControlFlags) bool {
		if f.HolidayHalt == on && f.HolidayReason == reason {
			return false
		}
		f.HolidayHalt = on
		f.HolidayReason = reason
		return true
	})
}

// SetNewsFreeze sets the news freeze and the tag of the active window.
func (s *State) SetNewsFreeze(on bool, tag, by string) bool {
	if !on {
		tag = ""
	}
	return s.update(by, func(f *models.ControlFlags) bool {
		if f.NewsFreezeOn == on && f.FreezeTag == tag {
			return false
		}
		f.NewsFreezeOn = on
		f.FreezeTag = tag
		return true
	})
}

// update applies mutate under the write lock and persists on change.
func (s *State) update(by string, mutate func(*models.ControlFlags) bool) bool {
	s.mu.Lock()
	if !mutate(&s.flags) {
		s.mu.Unlock()
		return false
	}
	s.flags.UpdatedAt = s.now().UTC()
	s.flags.UpdatedBy = by
	s.version++
	snapshot, version := s.flags, s.version
	s.mu.Unlock()

	s.save(snapshot, version)
	return true
}

// save writes snapshot unless a newer version has already been written, so
// the stored flags never fall behind the live ones.
func (s *State) save(snapshot models.ControlFlags, version uint64) {
	if s.persist == nil {
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if version <= s.saved {
		return
	}
	s.saved = version
	if err := s.persist.SaveFlags(snapshot); err != nil {
		s.logger.Error("failed to persist control flags", zap.Uint64("version", version), zap.Error(err))
	}
}
