package sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"
)

// replay says which failures of a request may be sent again.
type replay int

const (
	// replayAny covers reads and signal posts. Hosts dedup signals by payload
	// hash, so a second delivery of the same alert is answered as a duplicate.
	replayAny replay = iota

	// replayUnsent covers owner commands. A command may have run even when
	// its response was lost, so it is only sent again when no host saw it.
	replayUnsent
)

const signalsPath = "/api/v1/signals"

func replayFor(method, path string) replay {
	if method == http.MethodGet || path == signalsPath {
		return replayAny
	}
	return replayUnsent
}

// doRequestWithRetry sends req to one host, replaying the body from memory
// on every attempt.
//
// Transport errors and 5xx are retried with jittered backoff when the replay
// class allows it. A 429 or 503 carrying a Retry-After no longer than
// RetryWaitMax is waited out. Longer lockouts are returned to the caller.
func (c *Client) doRequestWithRetry(ctx context.Context, req *http.Request, body []byte, class replay) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt <= c.RetryAttempts; attempt++ {
		attemptReq := req.Clone(ctx)
		if body != nil {
			attemptReq.Body = io.NopCloser(bytes.NewReader(body))
			attemptReq.ContentLength = int64(len(body))
		}

		resp, err = c.HTTPClient.Do(attemptReq)

		wait, retry := c.retryAfter(class, resp, err, attempt)
		if !retry || attempt == c.RetryAttempts {
			break
		}

		drainAndCloseBody(resp)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed after %d attempts: %w", c.RetryAttempts+1, err)
	}
	if resp.StatusCode >= 500 {
		drainAndCloseBody(resp)
		return nil, fmt.Errorf("%w: status code %d", ErrServerError, resp.StatusCode)
	}
	return resp, nil
}

// retryAfter decides whether the outcome of one attempt is worth another,
// and how long to wait first.
func (c *Client) retryAfter(class replay, resp *http.Response, err error, attempt int) (time.Duration, bool) {
	if err != nil {
		if class == replayUnsent && !notSent(err) {
			return 0, false
		}
		return c.calculateBackoff(attempt), true
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusServiceUnavailable:
		if class == replayUnsent {
			return 0, false
		}
		hint, ok := parseRetryAfter(resp)
		if !ok {
			return c.calculateBackoff(attempt), resp.StatusCode == http.StatusServiceUnavailable
		}
		if hint > c.RetryWaitMax {
			return 0, false
		}
		return hint, true

	case resp.StatusCode >= 500:
		return c.calculateBackoff(attempt), class == replayAny

	default:
		return 0, false
	}
}

// notSent reports whether err happened before the request reached a host.
func notSent(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// calculateBackoff calculates the backoff duration for a retry attempt.
// It uses exponential backoff with full jitter.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.RetryWaitMin) * math.Pow(2, float64(attempt))

	if backoff > float64(c.RetryWaitMax) {
		backoff = float64(c.RetryWaitMax)
	}

	jitter := rand.Float64() * backoff

	return time.Duration(jitter)
}

// drainAndCloseBody reads and closes the response body to ensure connection reuse.
func drainAndCloseBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
