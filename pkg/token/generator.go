package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// DefaultTokenBytes is the number of random bytes in a generated secret.
	// 32 bytes = 256 bits of entropy, which base64-encodes to 44 characters.
	DefaultTokenBytes = 32

	signaturePrefix = "sha256="
)

// Verification reasons.
const (
	ReasonNoSecret        = "no_secret_configured"
	ReasonHMACOK          = "hmac_ok"
	ReasonHMACMismatch    = "hmac_mismatch"
	ReasonPlainOK         = "plain_secret_ok"
	ReasonPlainMismatch   = "plain_secret_mismatch"
	ReasonMissingHeader   = "missing_signature_header"
	ReasonMalformedHeader = "malformed_signature"
)

// Result is the outcome of verifying a payload.
type Result struct {
	OK     bool
	Reason string
}

// Generate creates a cryptographically secure random webhook secret.
//
// Returns:
//   - string: A base64-URL-encoded secret (44 characters)
//   - error: An error if random number generation fails
func Generate() (string, error) {
	return GenerateWithLength(DefaultTokenBytes)
}

// GenerateWithLength creates a cryptographically secure random secret of numBytes bytes.
//
// Parameters:
//   - numBytes: Number of random bytes to generate (minimum 32)
//
// Returns:
//   - string: A base64-URL-encoded secret
//   - error: An error if random number generation fails or numBytes is too small
func GenerateWithLength(numBytes int) (string, error) {
	if numBytes < DefaultTokenBytes {
		return "", fmt.Errorf("secret length must be at least %d bytes", DefaultTokenBytes)
	}

	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return base64.URLEncoding.EncodeToString(b), nil
}

// Sign returns the hex-encoded HMAC-SHA256 of body keyed by secret.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature header value against body.
//
// Parameters:
//   - body: The raw request body, exactly as received
//   - header: The signature header value; may carry a "sha256=" prefix
//   - secret: The shared secret; when empty, verification is skipped
//
// Returns:
//   - Result with OK and one of the Reason* constants
func Verify(body []byte, header, secret string) Result {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return Result{OK: true, Reason: ReasonNoSecret}
	}

	header = strings.ToLower(strings.TrimSpace(header))
	if header == "" {
		return Result{Reason: ReasonMissingHeader}
	}
	header = strings.TrimPrefix(header, signaturePrefix)

	provided, err := hex.DecodeString(header)
	if err != nil {
		return Result{Reason: ReasonMalformedHeader}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	// Use constant-time comparison to prevent timing attacks
	if hmac.Equal(provided, mac.Sum(nil)) {
		return Result{OK: true, Reason: ReasonHMACOK}
	}
	return Result{Reason: ReasonHMACMismatch}
}

// VerifyPlain compares a secret carried in the payload itself.
func VerifyPlain(provided, secret string) Result {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return Result{OK: true, Reason: ReasonNoSecret}
	}
	if hmac.Equal([]byte(strings.TrimSpace(provided)), []byte(secret)) {
		return Result{OK: true, Reason: ReasonPlainOK}
	}
	return Result{Reason: ReasonPlainMismatch}
}

// Equal compares two shared secrets in constant time.
func Equal(provided, expected string) bool {
	return hmac.Equal([]byte(provided), []byte(expected))
}
