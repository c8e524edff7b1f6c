package intake

import (
	"context"
	"time"

	"go.uber.org/zap"
	"tradegate.io/server/internal/logging"
	"tradegate.io/server/internal/metrics"
	"tradegate.io/server/internal/policy"
	"tradegate.io/server/internal/storage"
	"tradegate.io/server/models"
)

// DefaultDedupTTL is how long an idempotency key is remembered.
const DefaultDedupTTL = 5 * time.Minute

// Admitter is the policy gate.
type Admitter interface {
	Admit(sig models.Signal) policy.Decision
}

// Journal records gate outcomes.
type Journal interface {
	Record(ctx context.Context, sig models.Signal, resp models.SignalResponse, receivedAt time.Time) error
}

// Pipeline runs gate, dedup and journal for one parsed signal.
type Pipeline struct {
	gate    Admitter
	dedup   storage.Dedup
	journal Journal
	ttl     time.Duration
	logger  *zap.Logger

	// For testing - allow overriding time functions
	now func() time.Time
}

// NewPipeline creates a Pipeline. journal may be nil.
func NewPipeline(gate Admitter, dedup storage.Dedup, journal Journal, ttl time.Duration, logger *zap.Logger) *Pipeline {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Pipeline{
		gate:    gate,
		dedup:   dedup,
		journal: journal,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Process gates sig, then drops duplicates within the dedup ttl.
//
// Blocked signals are never remembered, so a retry after the block clears is
// accepted. Duplicates are answered as accepted and are not journalled again.
func (p *Pipeline) Process(ctx context.Context, sig models.Signal) models.SignalResponse {
	receivedAt := p.now()
	hash := Hash(sig)
	logger := logging.FromContext(ctx, p.logger).With(
		logging.Component("intake"),
		zap.String(logging.FieldSymbol, sig.Symbol),
		zap.String(logging.FieldTimeframe, sig.Timeframe),
		zap.String(logging.FieldSignalKey, hash),
	)

	decision := p.gate.Admit(sig)
	if !decision.Accepted {
		reason := decision.Reason
		resp := models.SignalResponse{Accepted: false, Reason: &reason, Hash: hash}
		p.record(ctx, logger, sig, resp, receivedAt)
		return resp
	}

	seen, err := p.dedup.Remember(ctx, hash, p.ttl)
	if err != nil {
		// Dedup failures fail open.
		logger.Error("dedup store failed, accepting without dedup", zap.Error(err))
	}
	if seen {
		metrics.SignalDuplicates.Inc()
		logger.Info("duplicate signal")
		return models.SignalResponse{Accepted: true, Duplicate: true, Hash: hash}
	}

	resp := models.SignalResponse{Accepted: true, Hash: hash}
	p.record(ctx, logger, sig, resp, receivedAt)
	logger.Info("signal accepted")
	return resp
}

func (p *Pipeline) record(ctx context.Context, logger *zap.Logger, sig models.Signal, resp models.SignalResponse, receivedAt time.Time) {
	if p.journal == nil {
		return
	}
	if err := p.journal.Record(ctx, sig, resp, receivedAt); err != nil {
		logger.Error("failed to journal signal", zap.Error(err))
	}
}
