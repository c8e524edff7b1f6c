// Package service provides the SQLite-backed services of the tradegate server.
//
// The lease table is the shared record both hosts coordinate through when
// they point at the same database file. The signal journal is host-local.
package service

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS lease (
    slot INTEGER PRIMARY KEY CHECK(slot = 1),
    owner_host_id TEXT NOT NULL,
    host_kind TEXT NOT NULL CHECK(host_kind IN ('local','cloud')),
    last_heartbeat_ms INTEGER NOT NULL,
    ttl_seconds INTEGER NOT NULL,
    mode TEXT NOT NULL CHECK(mode IN ('active','passive')),
    fencing_token INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS signal_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    hash TEXT NOT NULL,
    symbol TEXT NOT NULL,
    timeframe TEXT NOT NULL,
    signal_ts TEXT NOT NULL,
    alert_id TEXT NOT NULL,
    host_id TEXT NOT NULL,
    accepted INTEGER NOT NULL,
    duplicate INTEGER NOT NULL,
    reason TEXT,
    received_at_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signal_log_received ON signal_log(received_at_ms);
`

// Migrate creates the tables if they do not exist.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
