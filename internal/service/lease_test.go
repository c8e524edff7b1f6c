package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	_ "modernc.org/sqlite"
	"tradegate.io/server/models"
)

// createTestDB builds an in-memory SQLite database with the full schema.
func createTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return db
}

func newTestLogger() *zap.Logger {
	core, _ := observer.New(zap.InfoLevel)
	return zap.New(core)
}

func testLease(owner string, token int64, heartbeat time.Time) models.Lease {
	return models.Lease{
		OwnerHostID:   owner,
		HostKind:      models.HostKindLocal,
		LastHeartbeat: heartbeat,
		TTLSeconds:    45,
		Mode:          models.ModeActive,
		FencingToken:  token,
	}
}

func TestLeaseReadEmpty(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	svc := NewLeaseService(db, newTestLogger())
	l, err := svc.Read(context.Background())
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if l != nil {
		t.Fatalf("expected no lease, got %+v", l)
	}
}

func TestLeaseWriteAndRead(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	svc := NewLeaseService(db, newTestLogger())
	ctx := context.Background()
	hb := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	if err := svc.Write(ctx, testLease("laptop-1", 1, hb)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	l, err := svc.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if l.OwnerHostID != "laptop-1" || l.FencingToken != 1 || l.TTLSeconds != 45 {
		t.Fatalf("unexpected lease: %+v", l)
	}
	if !l.LastHeartbeat.Equal(hb) {
		t.Fatalf("heartbeat = %v, want %v", l.LastHeartbeat, hb)
	}
	if l.Mode != models.ModeActive || l.HostKind != models.HostKindLocal {
		t.Fatalf("unexpected mode/kind: %+v", l)
	}
}

func TestLeaseConditionalWrite(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	svc := NewLeaseService(db, newTestLogger())
	ctx := context.Background()
	hb := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	if err := svc.Write(ctx, testLease("laptop-1", 1, hb)); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	// cold-start race: the second claim of token 1 loses
	err := svc.Write(ctx, testLease("cloud-1", 1, hb))
	if !errors.Is(err, models.ErrLeaseRejected) {
		t.Fatalf("expected ErrLeaseRejected, got %v", err)
	}

	// renewal by the owner is accepted
	if err := svc.Write(ctx, testLease("laptop-1", 1, hb.Add(15*time.Second))); err != nil {
		t.Fatalf("renewal failed: %v", err)
	}

	// takeover with a newer token is accepted
	if err := svc.Write(ctx, testLease("cloud-1", 2, hb.Add(time.Minute))); err != nil {
		t.Fatalf("takeover failed: %v", err)
	}

	// the fenced owner can no longer renew
	err = svc.Write(ctx, testLease("laptop-1", 1, hb.Add(2*time.Minute)))
	if !errors.Is(err, models.ErrLeaseRejected) {
		t.Fatalf("expected ErrLeaseRejected for fenced owner, got %v", err)
	}

	l, _ := svc.Read(ctx)
	if l.OwnerHostID != "cloud-1" || l.FencingToken != 2 {
		t.Fatalf("unexpected final lease: %+v", l)
	}
}

func TestLeaseStoreUnavailable(t *testing.T) {
	db := createTestDB(t)
	svc := NewLeaseService(db, newTestLogger())
	db.Close()

	_, err := svc.Read(context.Background())
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	err = svc.Write(context.Background(), testLease("laptop-1", 1, time.Now()))
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on write, got %v", err)
	}
}

func TestLeaseReadRejectsUnknownMode(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	svc := NewLeaseService(db, newTestLogger())
	ctx := context.Background()
	if err := svc.Write(ctx, testLease("laptop-1", 1, time.Now())); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := db.Exec(`UPDATE lease SET mode = 'standby' WHERE slot = 1`); err != nil {
		t.Fatalf("corrupt mode: %v", err)
	}

	l, err := svc.Read(ctx)
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if l != nil {
		t.Fatalf("expected no lease, got %+v", l)
	}
}
