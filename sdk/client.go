// Package sdk is a Go client for tradegate hosts.
//
// A Client is configured with every host of a deployment. Signals and owner
// commands go to whichever host currently holds the lease; the client finds it
// through GET /health/active and fails over to the other hosts when the cached
// one stops answering.
package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"tradegate.io/server/models"
)

// Client is the main SDK client for talking to a tradegate deployment.
type Client struct {
	// BaseURLs is the list of host URLs.
	BaseURLs []string

	// SignalSecret signs signal bodies (optional).
	SignalSecret string

	// WebhookSecret authenticates commands and protected queries (optional).
	WebhookSecret string

	// HTTPClient is the HTTP client used for requests.
	HTTPClient *http.Client

	// RetryAttempts is the number of times to retry failed requests.
	RetryAttempts int

	// RetryWaitMin is the minimum wait time between retries.
	RetryWaitMin time.Duration

	// RetryWaitMax is the maximum wait time between retries.
	RetryWaitMax time.Duration

	// activeURL is the cached URL of the active host (protected by mu).
	activeURL string

	mu sync.RWMutex
}

// NewClient creates a new SDK client with the given configuration.
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		BaseURLs:      config.BaseURLs,
		SignalSecret:  config.SignalSecret,
		WebhookSecret: config.WebhookSecret,
		HTTPClient:    config.HTTPClient,
		RetryAttempts: config.RetryAttempts,
		RetryWaitMin:  config.RetryWaitMin,
		RetryWaitMax:  config.RetryWaitMax,
	}, nil
}

// DiscoverActive finds the host that currently holds the lease and caches it.
// Returns ErrNoActiveHost if every host answers passive or is unreachable.
func (c *Client) DiscoverActive(ctx context.Context) error {
	for _, baseURL := range c.BaseURLs {
		if c.probeActive(ctx, baseURL) {
			c.mu.Lock()
			c.activeURL = baseURL
			c.mu.Unlock()
			return nil
		}
	}

	return ErrNoActiveHost
}

func (c *Client) probeActive(ctx context.Context, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health/active", nil)
	if err != nil {
		return false
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer drainAndCloseBody(resp)

	return resp.StatusCode == http.StatusOK
}

// ActiveURL returns the cached active host URL, or "" if none is known.
func (c *Client) ActiveURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeURL
}

func (c *Client) clearActiveCache() {
	c.mu.Lock()
	c.activeURL = ""
	c.mu.Unlock()
}

// doRequest performs an HTTP request with automatic failover across hosts.
// If preferActive is true, the cached active host is tried first.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, authType AuthType, preferActive bool) (*http.Response, error) {
	urls := c.buildURLList(preferActive)
	if len(urls) == 0 {
		return nil, ErrNoBaseURLs
	}

	class := replayFor(method, path)
	var lastErr error

	for _, baseURL := range urls {
		req, err := http.NewRequestWithContext(ctx, method, baseURL+path, nil)
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}

		if err := c.addAuthHeaders(req, body, authType); err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.doRequestWithRetry(ctx, req, body, class)
		if err != nil {
			lastErr = err
			if baseURL == c.ActiveURL() {
				c.clearActiveCache()
			}
			// a command the host may have run is not sent to another host
			if class == replayUnsent && !notSent(err) {
				return nil, fmt.Errorf("%w: outcome unknown: %v", ErrAmbiguous, err)
			}
			continue
		}

		if err := statusError(resp); err != nil {
			return nil, err
		}

		return resp, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllHostsFailed, lastErr)
	}

	return nil, ErrAllHostsFailed
}

// buildURLList puts the cached active host first when preferActive is set.
func (c *Client) buildURLList(preferActive bool) []string {
	if preferActive {
		if active := c.ActiveURL(); active != "" {
			urls := []string{active}
			for _, url := range c.BaseURLs {
				if url != active {
					urls = append(urls, url)
				}
			}
			return urls
		}
	}

	return c.BaseURLs
}

// statusError maps non-2xx responses to SDK errors and closes their bodies.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrUnauthorized
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		sentinel = ErrBadRequest
	default:
		sentinel = ErrServerError
	}

	retryAfter, _ := parseRetryAfter(resp)

	var apiErr APIError
	if err := parseJSONResponse(resp, &apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("status code %d", resp.StatusCode)
	}
	if sentinel == ErrRateLimited {
		return &RateLimitError{RetryAfter: retryAfter, Message: apiErr.Message}
	}
	return fmt.Errorf("%w: %s", sentinel, apiErr.Message)
}

// parseJSONResponse parses a JSON response body into the provided destination.
func parseJSONResponse(resp *http.Response, dest interface{}) error {
	defer drainAndCloseBody(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return nil
}

// doJSONRequest marshals reqBody, performs the request and decodes the response.
func (c *Client) doJSONRequest(ctx context.Context, method, path string, reqBody, respBody interface{}, authType AuthType, preferActive bool) error {
	var body []byte
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = data
	}

	resp, err := c.doRequest(ctx, method, path, body, authType, preferActive)
	if err != nil {
		return err
	}

	if respBody != nil {
		return parseJSONResponse(resp, respBody)
	}

	drainAndCloseBody(resp)
	return nil
}

// ensureActive runs discovery when no active host is cached. Discovery
// failure is not an error: requests then try the hosts in configured order.
func (c *Client) ensureActive(ctx context.Context) {
	if c.ActiveURL() == "" {
		_ = c.DiscoverActive(ctx)
	}
}

// SendSignal posts a raw alert payload to the active host, signed with the
// signal secret.
//
// Parameters:
//   - ctx: Request context for cancellation and timeouts
//   - payload: Alert body exactly as the alert source would send it
//
// Returns:
//   - *models.SignalResponse: Gate outcome (accepted, reason, duplicate)
//   - error: ErrMissingAuth without a signal secret, ErrUnauthorized if the
//     signature was rejected, a *RateLimitError, or network errors
func (c *Client) SendSignal(ctx context.Context, payload []byte) (*models.SignalResponse, error) {
	c.ensureActive(ctx)

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/signals", payload, AuthTypeSignature, true)
	if err != nil {
		return nil, fmt.Errorf("failed to send signal: %w", err)
	}

	var out models.SignalResponse
	if err := parseJSONResponse(resp, &out); err != nil {
		return nil, err
	}

	// A passive answer means the lease moved since discovery.
	if !out.Accepted && out.Reason != nil && *out.Reason == "passive" {
		c.clearActiveCache()
	}

	return &out, nil
}

// SendCommand sends an owner command to the active host.
//
// Parameters:
//   - ctx: Request context for cancellation and timeouts
//   - senderID: Chat identity of the sender; only the configured owner is obeyed
//   - command: Command name without the leading slash (e.g. "panic_flat")
//   - args: Optional command arguments (e.g. "on")
//
// Returns:
//   - *models.CommandResponse: OK or a structured rejection reason
//   - error: ErrMissingAuth without a webhook secret, ErrUnauthorized,
//     ErrAmbiguous when the command reached a host but no answer came back,
//     or network errors
func (c *Client) SendCommand(ctx context.Context, senderID, command string, args ...string) (*models.CommandResponse, error) {
	c.ensureActive(ctx)

	reqBody := models.OwnerCommand{
		SenderID: senderID,
		Command:  command,
		Args:     args,
	}

	var out models.CommandResponse
	if err := c.doJSONRequest(ctx, http.MethodPost, "/api/v1/commands", reqBody, &out, AuthTypeWebhook, true); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	return &out, nil
}

// Status returns the lease and control summary from the active host, or from
// the first host that answers when none is known to be active.
func (c *Client) Status(ctx context.Context) (*models.StatusResponse, error) {
	var out models.StatusResponse
	if err := c.doJSONRequest(ctx, http.MethodGet, "/api/v1/status", nil, &out, AuthTypeNone, true); err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	return &out, nil
}

// Lease returns the cached lease view of the active host.
func (c *Client) Lease(ctx context.Context) (*models.LeaseSnapshot, error) {
	var out envelope[models.LeaseSnapshot]
	if err := c.doJSONRequest(ctx, http.MethodGet, "/api/v1/lease", nil, &out, AuthTypeWebhook, true); err != nil {
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}

	return &out.Data, nil
}

// RecentSignals returns up to limit journal entries from the active host,
// newest first.
func (c *Client) RecentSignals(ctx context.Context, limit int) ([]JournalEntry, error) {
	path := fmt.Sprintf("/api/v1/signals/recent?limit=%d", limit)

	var out envelope[[]JournalEntry]
	if err := c.doJSONRequest(ctx, http.MethodGet, path, nil, &out, AuthTypeWebhook, true); err != nil {
		return nil, fmt.Errorf("failed to get recent signals: %w", err)
	}

	return out.Data, nil
}

// HostStatuses queries every configured host concurrently. Unreachable hosts
// are reported through HostStatus.Err rather than failing the call.
func (c *Client) HostStatuses(ctx context.Context) []HostStatus {
	results := make([]HostStatus, len(c.BaseURLs))

	g, gctx := errgroup.WithContext(ctx)
	for i, baseURL := range c.BaseURLs {
		g.Go(func() error {
			results[i] = c.hostStatus(gctx, baseURL)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *Client) hostStatus(ctx context.Context, baseURL string) HostStatus {
	hs := HostStatus{URL: baseURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/status", nil)
	if err != nil {
		hs.Err = err
		return hs
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		hs.Err = err
		return hs
	}
	hs.ActiveOwner = resp.Header.Get(HeaderActiveOwner)

	if err := statusError(resp); err != nil {
		hs.Err = err
		return hs
	}

	var status models.StatusResponse
	if err := parseJSONResponse(resp, &status); err != nil {
		hs.Err = err
		return hs
	}
	hs.Status = &status

	return hs
}

// IsAuthError reports whether err was caused by rejected credentials.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrMissingAuth)
}
