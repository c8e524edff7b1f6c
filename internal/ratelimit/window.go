// Package ratelimit provides fixed-window rate limiting keyed by sender.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"tradegate.io/server/internal/metrics"
)

// LimitType represents the type of rate limit to apply.
type LimitType string

const (
	// LimitTypeCommand is for owner commands per sender.
	LimitTypeCommand LimitType = "command"

	// LimitTypeSignatureFailure is for bad signal signatures per client IP.
	LimitTypeSignatureFailure LimitType = "signature_failure"
)

// Config holds the rate limiting configuration.
type Config struct {
	// CommandsPerWindow is how many commands one sender may issue per window.
	CommandsPerWindow int

	// CommandWindow is the fixed window length for commands.
	CommandWindow time.Duration

	// SignatureFailuresPerWindow is how many bad signatures one IP may send
	// before further intake requests are refused for the rest of the window.
	SignatureFailuresPerWindow int

	SignatureFailureWindow time.Duration
}

// DefaultConfig returns the default rate limiting configuration.
func DefaultConfig() Config {
	return Config{
		CommandsPerWindow:          20,
		CommandWindow:              time.Minute,
		SignatureFailuresPerWindow: 10,
		SignatureFailureWindow:     time.Hour,
	}
}

// Limiter counts events per key in fixed windows. Every call counts,
// including denied ones, and a denial never resets the window.
type Limiter struct {
	storage *Storage
	config  Config
	mu      sync.Mutex

	// For testing - allow overriding time functions
	now func() time.Time
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(config Config) *Limiter {
	defaults := DefaultConfig()
	if config.CommandsPerWindow <= 0 {
		config.CommandsPerWindow = defaults.CommandsPerWindow
	}
	if config.CommandWindow <= 0 {
		config.CommandWindow = defaults.CommandWindow
	}
	if config.SignatureFailuresPerWindow <= 0 {
		config.SignatureFailuresPerWindow = defaults.SignatureFailuresPerWindow
	}
	if config.SignatureFailureWindow <= 0 {
		config.SignatureFailureWindow = defaults.SignatureFailureWindow
	}

	return &Limiter{
		storage: NewStorage(),
		config:  config,
		now:     time.Now,
	}
}

// SetClock replaces the limiter's time source.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow counts one event for key and reports whether it is within the limit.
// When denied, retryAfter is the number of whole seconds until the window rolls over.
func (l *Limiter) Allow(key string, limitType LimitType) (allowed bool, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, length := l.limits(limitType)
	now := l.now()

	w := l.storage.Get(key)
	if w == nil || w.Expired(now) {
		w = &Window{Start: now, Length: length}
	}
	w.Count++
	l.storage.Set(key, w)

	if w.Count <= limit {
		return true, 0
	}

	metrics.RateLimitBlocks.WithLabelValues(string(limitType)).Inc()

	remaining := w.Start.Add(length).Sub(now)
	retrySeconds := int((remaining + time.Second - 1) / time.Second)
	if retrySeconds < 1 {
		retrySeconds = 1
	}
	return false, retrySeconds
}

// Blocked reports whether key is over its limit without counting an event.
// It agrees with Allow: a key at exactly the limit is not blocked.
func (l *Limiter) Blocked(key string, limitType LimitType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, _ := l.limits(limitType)
	w := l.storage.Get(key)
	if w == nil || w.Expired(l.now()) {
		return false
	}
	return w.Count > limit
}

func (l *Limiter) limits(limitType LimitType) (int, time.Duration) {
	switch limitType {
	case LimitTypeSignatureFailure:
		return l.config.SignatureFailuresPerWindow, l.config.SignatureFailureWindow
	default:
		return l.config.CommandsPerWindow, l.config.CommandWindow
	}
}

// BuildKey creates a rate limit key from identifier and limit type.
func BuildKey(identifier string, limitType LimitType) string {
	return fmt.Sprintf("%s:%s", limitType, identifier)
}

// Stop gracefully stops the limiter and cleans up resources.
func (l *Limiter) Stop() {
	l.storage.Stop()
}

// GetStorage returns the underlying storage (for testing).
func (l *Limiter) GetStorage() *Storage {
	return l.storage
}
