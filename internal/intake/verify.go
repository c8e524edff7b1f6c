package intake

import (
	"net/http"
	"strings"

	"tradegate.io/server/pkg/token"
)

// ReasonPlainParseError is returned when the plain secret fallback cannot read the body.
const ReasonPlainParseError = "plain_secret_parse_error"

// DefaultSignatureHeaders are checked in order; the first non-empty one is used.
var DefaultSignatureHeaders = []string{"X-Signature", "X-TV-Signature", "X-Hub-Signature-256"}

// VerifierConfig configures signal authentication.
type VerifierConfig struct {
	// Secret is the shared webhook secret. Empty disables verification.
	Secret string

	// HMACRequired rejects unsigned bodies. When false, a "secret" field in the
	// body is accepted instead of a signature header.
	HMACRequired bool

	// Headers are the candidate signature headers.
	Headers []string
}

// Verifier authenticates signal bodies.
type Verifier struct {
	config VerifierConfig
}

// NewVerifier creates a Verifier.
func NewVerifier(config VerifierConfig) *Verifier {
	if len(config.Headers) == 0 {
		config.Headers = DefaultSignatureHeaders
	}
	return &Verifier{config: config}
}

// Verify checks body against the configured secret.
func (v *Verifier) Verify(header http.Header, body []byte) token.Result {
	if strings.TrimSpace(v.config.Secret) == "" {
		return token.Result{OK: true, Reason: token.ReasonNoSecret}
	}

	if sig := v.pickHeader(header); sig != "" {
		return token.Verify(body, sig, v.config.Secret)
	}

	if v.config.HMACRequired {
		return token.Result{Reason: token.ReasonMissingHeader}
	}

	payload, err := Decode(body)
	if err != nil {
		return token.Result{Reason: ReasonPlainParseError}
	}
	provided, _ := payload["secret"].(string)
	return token.VerifyPlain(provided, v.config.Secret)
}

func (v *Verifier) pickHeader(header http.Header) string {
	for _, name := range v.config.Headers {
		if val := strings.TrimSpace(header.Get(name)); val != "" {
			return val
		}
	}
	return ""
}
