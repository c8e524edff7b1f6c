package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"tradegate.io/server/internal/ha"
	"tradegate.io/server/internal/logging"
	"tradegate.io/server/internal/metrics"
	"tradegate.io/server/models"
)

// LeaseService stores the lease in a single SQLite row and accepts writes
// conditionally, so two hosts sharing the database file cannot both claim
// the same fencing token.
type LeaseService struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLeaseService creates a new lease service.
//
// Parameters:
//   - db: Database connection with the schema applied (see Migrate)
//   - logger: Zap logger for structured logging
//
// Returns:
//   - Configured LeaseService
func NewLeaseService(db *sql.DB, logger *zap.Logger) *LeaseService {
	return &LeaseService{
		db:     db,
		logger: logger,
	}
}

// Read returns the stored lease, or (nil, nil) when none has been written.
func (s *LeaseService) Read(ctx context.Context) (*models.Lease, error) {
	start := time.Now()
	defer observe("read", start)

	query := `
		SELECT owner_host_id, host_kind, last_heartbeat_ms, ttl_seconds, mode, fencing_token
		FROM lease
		WHERE slot = 1
	`

	var (
		l           models.Lease
		kind, mode  string
		heartbeatMs int64
	)
	err := s.db.QueryRowContext(ctx, query).Scan(&l.OwnerHostID, &kind, &heartbeatMs, &l.TTLSeconds, &mode, &l.FencingToken)
	if errors.Is(err, sql.ErrNoRows) {
		count("read", "empty")
		return nil, nil
	}
	if err != nil {
		count("read", "error")
		return nil, fmt.Errorf("%w: failed to read lease: %v", models.ErrStoreUnavailable, err)
	}

	l.HostKind = models.HostKind(kind)
	l.Mode = models.Mode(mode)
	// a row no host could have written is not a lease to follow
	if !ha.ValidateMode(l.Mode) {
		count("read", "error")
		return nil, fmt.Errorf("%w: lease row has unknown mode %q", models.ErrStoreUnavailable, mode)
	}
	count("read", "success")

	l.LastHeartbeat = time.UnixMilli(heartbeatMs).UTC()
	return &l, nil
}

// Write stores the lease if it carries a strictly newer fencing token, or the
// same token from the same owner. Otherwise it returns models.ErrLeaseRejected.
//
// Parameters:
//   - ctx: Bounds the statement
//   - lease: The record to store
//
// Returns:
//   - error: models.ErrLeaseRejected, or a wrapped models.ErrStoreUnavailable
func (s *LeaseService) Write(ctx context.Context, lease models.Lease) error {
	start := time.Now()
	defer observe("write", start)

	query := `
		INSERT INTO lease (slot, owner_host_id, host_kind, last_heartbeat_ms, ttl_seconds, mode, fencing_token)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			owner_host_id = excluded.owner_host_id,
			host_kind = excluded.host_kind,
			last_heartbeat_ms = excluded.last_heartbeat_ms,
			ttl_seconds = excluded.ttl_seconds,
			mode = excluded.mode,
			fencing_token = excluded.fencing_token
		WHERE excluded.fencing_token > lease.fencing_token
			OR (excluded.fencing_token = lease.fencing_token AND excluded.owner_host_id = lease.owner_host_id)
	`

	result, err := s.db.ExecContext(ctx, query,
		lease.OwnerHostID,
		string(lease.HostKind),
		lease.LastHeartbeat.UnixMilli(),
		lease.TTLSeconds,
		string(lease.Mode),
		lease.FencingToken,
	)
	if err != nil {
		count("write", "error")
		return fmt.Errorf("%w: failed to write lease: %v", models.ErrStoreUnavailable, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		count("write", "error")
		return fmt.Errorf("%w: failed to check lease write: %v", models.ErrStoreUnavailable, err)
	}

	if rows == 0 {
		count("write", "rejected")
		s.logger.Debug("lease write rejected",
			zap.String(logging.FieldOwnerHostID, lease.OwnerHostID),
			zap.Int64(logging.FieldFencingToken, lease.FencingToken),
		)
		return models.ErrLeaseRejected
	}

	count("write", "success")
	return nil
}

// Ping checks the database connection.
func (s *LeaseService) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func observe(op string, start time.Time) {
	metrics.StoreOpDuration.WithLabelValues("sqlite", op).Observe(time.Since(start).Seconds())
}

func count(op, status string) {
	metrics.StoreOpsTotal.WithLabelValues("sqlite", op, status).Inc()
}
