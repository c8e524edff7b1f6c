package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"tradegate.io/server/internal/intake"
	"tradegate.io/server/internal/logging"
	"tradegate.io/server/internal/metrics"
	"tradegate.io/server/internal/ratelimit"
	"tradegate.io/server/models"
)

// DefaultMaxBodyBytes bounds signal bodies.
const DefaultMaxBodyBytes = 64 << 10

// SignatureGuard verifies signal signatures and throttles clients that keep
// sending bad ones.
type SignatureGuard struct {
	verifier *intake.Verifier
	limiter  *ratelimit.Limiter
	maxBody  int64
}

// NewSignatureGuard creates a SignatureGuard. maxBody <= 0 uses DefaultMaxBodyBytes.
func NewSignatureGuard(verifier *intake.Verifier, limiter *ratelimit.Limiter, maxBody int64) *SignatureGuard {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &SignatureGuard{verifier: verifier, limiter: limiter, maxBody: maxBody}
}

// VerifySignature reads the body once, verifies it, and stores it in the
// context for the handler.
//
// Clients over the failure budget are refused with 429 and Retry-After
// before their body is examined.
func (g *SignatureGuard) VerifySignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ratelimit.BuildKey(c.ClientIP(), ratelimit.LimitTypeSignatureFailure)

		if g.limiter.Blocked(key, ratelimit.LimitTypeSignatureFailure) {
			_, retryAfter := g.limiter.Allow(key, ratelimit.LimitTypeSignatureFailure)
			RespondError(c, &RateLimitError{Scope: "signature_failure", RetryAfter: retryAfter})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, g.maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				RespondError(c, fmt.Errorf("%w: limit %d bytes", models.ErrPayloadTooLarge, tooLarge.Limit))
			} else {
				RespondError(c, fmt.Errorf("%w: unreadable body: %v", models.ErrInvalidRequest, err))
			}
			return
		}
		metrics.SignalBodyBytes.Observe(float64(len(body)))

		result := g.verifier.Verify(c.Request.Header, body)
		if !result.OK {
			g.limiter.Allow(key, ratelimit.LimitTypeSignatureFailure)
			metrics.SignalAuthFailures.Inc()
			GetLogger(c).Warn("signal signature rejected", logging.Reason(result.Reason))

			RespondError(c, fmt.Errorf("%w: %s", models.ErrInvalidSignature, result.Reason))
			return
		}

		GetLogger(c).Debug("signal signature verified", zap.String("result", result.Reason))
		c.Set(ContextKeyRawBody, body)
		c.Next()
	}
}
