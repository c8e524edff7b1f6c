package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(perWindow int) (*Limiter, *time.Time) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	l := NewLimiter(Config{CommandsPerWindow: perWindow, CommandWindow: time.Minute})
	l.SetClock(func() time.Time { return now })
	return l, &now
}

func TestLimiter_ThresholdBoundary(t *testing.T) {
	limiter, _ := newTestLimiter(5)
	defer limiter.Stop()

	key := BuildKey("owner-1", LimitTypeCommand)

	for i := 1; i <= 5; i++ {
		if allowed, _ := limiter.Allow(key, LimitTypeCommand); !allowed {
			t.Fatalf("command %d should be allowed", i)
		}
	}

	allowed, retryAfter := limiter.Allow(key, LimitTypeCommand)
	if allowed {
		t.Fatal("command 6 should be rate limited")
	}
	if retryAfter != 60 {
		t.Errorf("retryAfter = %d, want 60", retryAfter)
	}
}

func TestLimiter_DeniedCommandsCountAndDoNotReset(t *testing.T) {
	limiter, now := newTestLimiter(2)
	defer limiter.Stop()

	key := BuildKey("owner-1", LimitTypeCommand)
	limiter.Allow(key, LimitTypeCommand)
	limiter.Allow(key, LimitTypeCommand)

	// keep hammering inside the window
	for i := 0; i < 3; i++ {
		*now = now.Add(15 * time.Second)
		if allowed, _ := limiter.Allow(key, LimitTypeCommand); allowed {
			t.Fatalf("denied attempt %d should stay denied", i)
		}
	}

	if w := limiter.GetStorage().Get(key); w.Count != 5 {
		t.Errorf("Count = %d, want 5 (denials count)", w.Count)
	}

	// 45s in: window opened at 0s, so it rolls over at 60s regardless of denials
	*now = now.Add(14 * time.Second)
	if allowed, retry := limiter.Allow(key, LimitTypeCommand); allowed || retry != 1 {
		t.Fatalf("59s: allowed=%v retry=%d, want denied with retry 1", allowed, retry)
	}

	*now = now.Add(time.Second)
	if allowed, _ := limiter.Allow(key, LimitTypeCommand); !allowed {
		t.Fatal("command after rollover should succeed")
	}
}

func TestLimiter_IndependentKeys(t *testing.T) {
	limiter, _ := newTestLimiter(1)
	defer limiter.Stop()

	a := BuildKey("owner-1", LimitTypeCommand)
	b := BuildKey("owner-2", LimitTypeCommand)

	limiter.Allow(a, LimitTypeCommand)
	if allowed, _ := limiter.Allow(a, LimitTypeCommand); allowed {
		t.Error("second command for owner-1 should be limited")
	}
	if allowed, _ := limiter.Allow(b, LimitTypeCommand); !allowed {
		t.Error("owner-2 has its own window")
	}
}

func TestLimiter_BlockedDoesNotCount(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	limiter := NewLimiter(Config{SignatureFailuresPerWindow: 2, SignatureFailureWindow: time.Hour})
	limiter.SetClock(func() time.Time { return now })
	defer limiter.Stop()

	key := BuildKey("10.0.0.1", LimitTypeSignatureFailure)
	if limiter.Blocked(key, LimitTypeSignatureFailure) {
		t.Fatal("unknown key should not be blocked")
	}

	limiter.Allow(key, LimitTypeSignatureFailure)
	if limiter.Blocked(key, LimitTypeSignatureFailure) {
		t.Fatal("one failure should not block")
	}
	limiter.Allow(key, LimitTypeSignatureFailure)
	if limiter.Blocked(key, LimitTypeSignatureFailure) {
		t.Fatal("reaching the limit should not block")
	}
	limiter.Allow(key, LimitTypeSignatureFailure)
	if !limiter.Blocked(key, LimitTypeSignatureFailure) {
		t.Fatal("going over the limit should block")
	}
	if w := limiter.GetStorage().Get(key); w.Count != 3 {
		t.Errorf("Blocked must not count, Count = %d", w.Count)
	}

	now = now.Add(time.Hour)
	if limiter.Blocked(key, LimitTypeSignatureFailure) {
		t.Fatal("block should lift after the window")
	}
}

func TestNewLimiter_Defaults(t *testing.T) {
	limiter := NewLimiter(Config{})
	defer limiter.Stop()

	if limiter.config != DefaultConfig() {
		t.Errorf("config = %+v, want defaults", limiter.config)
	}
}

func TestLimiter_BlockedAgreesWithAllow(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	limiter := NewLimiter(Config{CommandsPerWindow: 3, CommandWindow: time.Minute})
	limiter.SetClock(func() time.Time { return now })
	defer limiter.Stop()

	key := BuildKey("1001", LimitTypeCommand)
	for i := 1; i <= 5; i++ {
		allowed, _ := limiter.Allow(key, LimitTypeCommand)
		if blocked := limiter.Blocked(key, LimitTypeCommand); blocked == allowed {
			t.Fatalf("event %d: Allow = %v but Blocked = %v", i, allowed, blocked)
		}
	}
}
