package ratelimit

import (
	"sync"
	"time"

	"tradegate.io/server/internal/metrics"
)

// Window is the event count of one key in its current fixed window.
type Window struct {
	// Start is when the current window opened.
	Start time.Time

	// Count is the number of events seen in the window, denied ones included.
	Count int

	// Length is the window length of the key's limit type. Once Start+Length
	// has passed the window is worth nothing and cleanup may drop it.
	Length time.Duration
}

// Expired reports whether the window has closed at now.
func (w *Window) Expired(now time.Time) bool {
	return !now.Before(w.Start.Add(w.Length))
}

const cleanupInterval = time.Minute

// Storage provides thread-safe in-memory storage for rate limit windows.
// It uses sync.Map for concurrent access and periodically drops closed windows.
type Storage struct {
	windows   sync.Map
	cleanupMu sync.Mutex
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewStorage creates a new rate limit storage and starts the cleanup goroutine.
func NewStorage() *Storage {
	s := &Storage{
		stopCh: make(chan struct{}),
	}
	s.startCleanup()
	return s
}

// Get retrieves a window by key. Returns nil if not found.
func (s *Storage) Get(key string) *Window {
	value, ok := s.windows.Load(key)
	if !ok {
		return nil
	}
	w, ok := value.(*Window)
	if !ok {
		return nil
	}
	return w
}

// Set stores or updates a window by key.
func (s *Storage) Set(key string, w *Window) {
	s.windows.Store(key, w)
}

// Delete removes a window by key.
func (s *Storage) Delete(key string) {
	s.windows.Delete(key)
}

// startCleanup starts a background goroutine that periodically drops closed windows.
func (s *Storage) startCleanup() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.cleanup(time.Now())
			case <-s.stopCh:
				return
			}
		}
	}()
}

// cleanup removes windows that have closed. A closed window and a missing
// one are treated the same by the limiter.
func (s *Storage) cleanup(now time.Time) {
	s.cleanupMu.Lock()
	defer s.cleanupMu.Unlock()

	s.windows.Range(func(key, value interface{}) bool {
		w, ok := value.(*Window)
		if !ok || w.Expired(now) {
			s.windows.Delete(key)
		}
		return true
	})

	metrics.RateLimitWindows.Set(float64(s.Count()))
}

// Stop gracefully stops the storage cleanup goroutine. Safe to call twice.
func (s *Storage) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Count returns the number of windows currently stored (for testing/monitoring).
func (s *Storage) Count() int {
	count := 0
	s.windows.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}
