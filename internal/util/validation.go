// Package util provides validation helpers for configuration values.
package util

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// MaxHostIDLength bounds host identifiers; they are written into every lease.
const MaxHostIDLength = 64

// ValidateHostID checks that a host identifier is 1-64 characters of
// letters, digits, '.', '_' or '-'.
//
// Parameters:
//   - id: The host identifier to validate
//
// Returns:
//   - error: An error naming the first offending character, nil otherwise
//
// Example:
//
//	if err := util.ValidateHostID(cfg.Host.ID); err != nil {
//	    return fmt.Errorf("host.id: %w", err)
//	}
func ValidateHostID(id string) error {
	if id == "" {
		return fmt.Errorf("host id must not be empty")
	}
	if len(id) > MaxHostIDLength {
		return fmt.Errorf("host id must be at most %d characters, got %d", MaxHostIDLength, len(id))
	}
	for i, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return fmt.Errorf("host id has invalid character %q at position %d", r, i)
		}
	}
	return nil
}

// ValidateHookURL checks that a standby control URL is an absolute http(s) URL.
// An empty string is valid and disables the hook.
//
// Parameters:
//   - raw: The URL to validate
//
// Returns:
//   - error: An error if the URL cannot be called, nil otherwise
func ValidateHookURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

// ValidateListenAddr checks a host:port listen address. The host may be empty.
func ValidateListenAddr(addr string) error {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid listen port %q", portStr)
	}
	return ValidatePortRange(port)
}

// ValidatePortRange checks if a port number is in valid range (1-65535).
func ValidatePortRange(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}
