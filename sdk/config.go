package sdk

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ClientConfig contains the configuration for creating a new SDK client.
type ClientConfig struct {
	// BaseURLs lists every tradegate host, e.g. the local host first and the
	// cloud standby second. The client discovers the active one and fails over.
	BaseURLs []string

	// SignalSecret signs signal payloads (HMAC-SHA256).
	// Optional: only required for SendSignal.
	SignalSecret string

	// WebhookSecret authenticates owner commands and the protected queries.
	// Optional: only required for SendCommand, Lease and RecentSignals.
	WebhookSecret string

	// HTTPClient is the HTTP client to use for requests.
	// Optional: if nil, a default client with reasonable timeouts will be created.
	HTTPClient *http.Client

	// RetryAttempts is the number of times to retry failed requests.
	// Default: 3
	RetryAttempts int

	// RetryWaitMin is the minimum wait time between retries.
	// Default: 1 second
	RetryWaitMin time.Duration

	// RetryWaitMax is the maximum wait time between retries.
	// Default: 30 seconds
	RetryWaitMax time.Duration

	// Timeout is the HTTP request timeout.
	// Default: 30 seconds
	Timeout time.Duration
}

// Validate checks if the client configuration is valid and sets defaults.
func (c *ClientConfig) Validate() error {
	if len(c.BaseURLs) == 0 {
		return fmt.Errorf("%w: at least one base URL is required", ErrInvalidConfig)
	}

	seen := make(map[string]int, len(c.BaseURLs))
	for i, raw := range c.BaseURLs {
		base, err := normalizeBaseURL(raw)
		if err != nil {
			return fmt.Errorf("%w: base URL at index %d %v", ErrInvalidConfig, i, err)
		}
		if j, dup := seen[base]; dup {
			return fmt.Errorf("%w: base URL at index %d duplicates index %d", ErrInvalidConfig, i, j)
		}
		seen[base] = i
		c.BaseURLs[i] = base
	}

	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryWaitMin == 0 {
		c.RetryWaitMin = 1 * time.Second
	}
	if c.RetryWaitMax == 0 {
		c.RetryWaitMax = 30 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{
			Timeout: c.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return nil
}

// normalizeBaseURL trims whitespace and trailing slashes and checks that
// the URL is absolute http(s) with a host.
func normalizeBaseURL(raw string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return "", errors.New("is empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("is malformed: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("must start with http:// or https://")
	}
	if u.Host == "" {
		return "", errors.New("has no host")
	}
	return base, nil
}

// HasSignalAuth returns true if a signal signing secret is available.
func (c *ClientConfig) HasSignalAuth() bool {
	return strings.TrimSpace(c.SignalSecret) != ""
}

// HasWebhookAuth returns true if the webhook secret is available.
func (c *ClientConfig) HasWebhookAuth() bool {
	return strings.TrimSpace(c.WebhookSecret) != ""
}
