package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"tradegate.io/server/models"
)

// JournalEntry is one row of the signal journal.
type JournalEntry struct {
	ID         int64     `json:"id"`
	Hash       string    `json:"hash"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Timestamp  string    `json:"ts"`
	AlertID    string    `json:"alert_id"`
	HostID     string    `json:"host_id"`
	Accepted   bool      `json:"accepted"`
	Duplicate  bool      `json:"duplicate"`
	Reason     string    `json:"reason,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// SignalJournal records every gate outcome on this host.
type SignalJournal struct {
	db     *sql.DB
	hostID string
	logger *zap.Logger
}

// NewSignalJournal creates a journal writing rows tagged with hostID.
func NewSignalJournal(db *sql.DB, hostID string, logger *zap.Logger) *SignalJournal {
	return &SignalJournal{db: db, hostID: hostID, logger: logger}
}

// Record appends the outcome of one signal.
func (j *SignalJournal) Record(ctx context.Context, sig models.Signal, resp models.SignalResponse, receivedAt time.Time) error {
	start := time.Now()
	defer observe("journal_record", start)

	query := `
		INSERT INTO signal_log (hash, symbol, timeframe, signal_ts, alert_id, host_id, accepted, duplicate, reason, received_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var reason sql.NullString
	if resp.Reason != nil {
		reason = sql.NullString{String: *resp.Reason, Valid: true}
	}

	_, err := j.db.ExecContext(ctx, query,
		resp.Hash, sig.Symbol, sig.Timeframe, sig.Timestamp, sig.ID, j.hostID,
		resp.Accepted, resp.Duplicate, reason, receivedAt.UnixMilli(),
	)
	if err != nil {
		count("journal_record", "error")
		return fmt.Errorf("failed to record signal: %w", err)
	}
	count("journal_record", "success")
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *SignalJournal) Recent(ctx context.Context, limit int) ([]*JournalEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT id, hash, symbol, timeframe, signal_ts, alert_id, host_id, accepted, duplicate, reason, received_at_ms
		FROM signal_log
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	var entries []*JournalEntry
	for rows.Next() {
		var (
			e          JournalEntry
			reason     sql.NullString
			receivedMs int64
		)
		if err := rows.Scan(&e.ID, &e.Hash, &e.Symbol, &e.Timeframe, &e.Timestamp, &e.AlertID, &e.HostID,
			&e.Accepted, &e.Duplicate, &reason, &receivedMs); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		e.Reason = reason.String
		e.ReceivedAt = time.UnixMilli(receivedMs).UTC()
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	return entries, nil
}

// Prune deletes entries received before cutoff and returns how many were removed.
func (j *SignalJournal) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := j.db.ExecContext(ctx, `DELETE FROM signal_log WHERE received_at_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune signal journal: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check prune result: %w", err)
	}
	if n > 0 {
		j.logger.Info("pruned signal journal", zap.Int64("count", n))
	}
	return int(n), nil
}
