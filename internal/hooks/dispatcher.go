// Package hooks calls the external pause and resume endpoints of the cloud
// standby when the local failover mode changes.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"tradegate.io/server/internal/logging"
	"tradegate.io/server/models"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxAttempts  = 3
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 5 * time.Second
)

// ErrHookFailed is returned when every attempt of a hook call failed.
var ErrHookFailed = errors.New("hook call failed")

// Config holds hook endpoint configuration.
type Config struct {
	// PauseURL suspends the cloud standby.
	PauseURL string

	// ResumeURL wakes the cloud standby.
	ResumeURL string

	// AutoPause is the master switch; when false every call is a no-op.
	AutoPause bool

	// Timeout bounds a single attempt.
	Timeout time.Duration

	MaxAttempts  int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultConfig returns a Config with auto-pause on and no endpoints.
func DefaultConfig() Config {
	return Config{
		AutoPause:    true,
		Timeout:      DefaultTimeout,
		MaxAttempts:  DefaultMaxAttempts,
		RetryWaitMin: DefaultRetryWaitMin,
		RetryWaitMax: DefaultRetryWaitMax,
	}
}

// Status describes the hook configuration for operators. URLs are never exposed.
type Status struct {
	AutoPause    bool            `json:"autopause"`
	PauseURLSet  bool            `json:"pause_url_set"`
	ResumeURLSet bool            `json:"resume_url_set"`
	HostKind     models.HostKind `json:"host_kind"`
}

// Dispatcher maps mode transitions of this host to pause/resume calls.
//
//	local became active  -> pause  (the standby can sleep)
//	local became passive -> resume (the standby must take over)
//	cloud became passive -> pause  (suspend self)
//	cloud became active  -> nothing
type Dispatcher struct {
	config Config
	kind   models.HostKind
	client *http.Client
	logger *zap.Logger
}

// NewDispatcher creates a Dispatcher for a host of the given kind.
func NewDispatcher(config Config, kind models.HostKind, logger *zap.Logger) *Dispatcher {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.RetryWaitMin <= 0 {
		config.RetryWaitMin = DefaultRetryWaitMin
	}
	if config.RetryWaitMax < config.RetryWaitMin {
		config.RetryWaitMax = config.RetryWaitMin
	}

	return &Dispatcher{
		config: config,
		kind:   kind,
		client: &http.Client{},
		logger: logger.With(logging.Component("hooks")),
	}
}

// OnBecameActive implements ha.TransitionHooks.
func (d *Dispatcher) OnBecameActive(ctx context.Context) error {
	if d.kind != models.HostKindLocal {
		return nil
	}
	_, err := d.Pause(ctx)
	return err
}

// OnBecamePassive implements ha.TransitionHooks.
func (d *Dispatcher) OnBecamePassive(ctx context.Context) error {
	var err error
	switch d.kind {
	case models.HostKindLocal:
		_, err = d.Resume(ctx)
	case models.HostKindCloud:
		_, err = d.Pause(ctx)
	}
	return err
}

// Pause calls the pause endpoint. Returns false without error when auto-pause
// is off or no endpoint is configured.
func (d *Dispatcher) Pause(ctx context.Context) (bool, error) {
	return d.hit(ctx, "pause", d.config.PauseURL)
}

// Resume calls the resume endpoint. Returns false without error when auto-pause
// is off or no endpoint is configured.
func (d *Dispatcher) Resume(ctx context.Context) (bool, error) {
	return d.hit(ctx, "resume", d.config.ResumeURL)
}

// Status reports the hook configuration.
func (d *Dispatcher) Status() Status {
	return Status{
		AutoPause:    d.config.AutoPause,
		PauseURLSet:  d.config.PauseURL != "",
		ResumeURLSet: d.config.ResumeURL != "",
		HostKind:     d.kind,
	}
}

func (d *Dispatcher) hit(ctx context.Context, action, target string) (bool, error) {
	if !d.config.AutoPause || target == "" {
		d.logger.Debug("hook skipped", zap.String("action", action), zap.Bool("autopause", d.config.AutoPause))
		return false, nil
	}

	if err := d.post(ctx, target); err != nil {
		if errors.Is(err, context.Canceled) {
			d.logger.Info("hook superseded", zap.String("action", action))
			return false, err
		}
		d.logger.Error("hook failed",
			zap.String("action", action),
			zap.String("target", redact(target)),
			zap.Error(err),
		)
		return false, err
	}

	d.logger.Info("hook delivered", zap.String("action", action), zap.String("target", redact(target)))
	return true, nil
}

// post sends an empty POST, retrying with exponential backoff and jitter.
// Any 2xx status is success. A cancelled context stops the retries and is
// returned as is, so a superseded transition never lands late.
func (d *Dispatcher) post(ctx context.Context, target string) error {
	var lastErr error

	for attempt := 0; attempt < d.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = d.attempt(ctx, target)
		if lastErr == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt == d.config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.calculateBackoff(attempt)):
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrHookFailed, d.config.MaxAttempts, lastErr)
}

func (d *Dispatcher) attempt(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer drainAndCloseBody(resp)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// calculateBackoff uses exponential backoff with jitter to avoid thundering herd.
func (d *Dispatcher) calculateBackoff(attempt int) time.Duration {
	backoff := float64(d.config.RetryWaitMin) * math.Pow(2, float64(attempt))
	if backoff > float64(d.config.RetryWaitMax) {
		backoff = float64(d.config.RetryWaitMax)
	}

	// Add jitter (random value between half and full backoff)
	return time.Duration(backoff/2 + rand.Float64()*backoff/2)
}

// redact keeps only scheme and host; hook URLs often embed secrets.
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "invalid-url"
	}
	return u.Scheme + "://" + u.Host
}

func drainAndCloseBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
