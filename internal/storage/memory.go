// Package storage provides the lease, idempotency and flag stores used by the
// tradegate server.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradegate.io/server/models"
)

// MemoryLeaseStore keeps the lease in process memory.
//
// By default writes are last-write-wins, like a plain shared document. With
// conditional set, writes follow models.Lease.CanReplace.
type MemoryLeaseStore struct {
	mu          sync.Mutex
	lease       *models.Lease
	conditional bool

	readErr  error
	writeErr error
	writes   int
}

// NewMemoryLeaseStore creates an empty store.
func NewMemoryLeaseStore(conditional bool) *MemoryLeaseStore {
	return &MemoryLeaseStore{conditional: conditional}
}

// Read returns a copy of the stored lease, or nil when none has been written.
func (s *MemoryLeaseStore) Read(ctx context.Context) (*models.Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.lease == nil {
		return nil, nil
	}
	l := *s.lease
	return &l, nil
}

// Write stores the lease.
func (s *MemoryLeaseStore) Write(ctx context.Context, lease models.Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}
	if s.conditional && !lease.CanReplace(s.lease) {
		return fmt.Errorf("%w: token %d from %s, stored token %d from %s",
			models.ErrLeaseRejected, lease.FencingToken, lease.OwnerHostID,
			s.lease.FencingToken, s.lease.OwnerHostID)
	}
	s.lease = &lease
	s.writes++
	return nil
}

// FailWith makes subsequent reads and writes return the given errors.
// Pass nil to clear.
func (s *MemoryLeaseStore) FailWith(readErr, writeErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = readErr
	s.writeErr = writeErr
}

// Ping reports the injected read error, if any.
func (s *MemoryLeaseStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

// Writes returns the number of accepted writes.
func (s *MemoryLeaseStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Dedup remembers idempotency keys for a bounded time.
type Dedup interface {
	// Remember records key for ttl and reports whether an unexpired record
	// already existed.
	Remember(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemoryDedup is an in-process Dedup.
type MemoryDedup struct {
	mu      sync.Mutex
	entries map[string]time.Time

	// For testing - allow overriding time functions
	now func() time.Time
}

// NewMemoryDedup creates an empty in-process dedup store.
func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Remember implements Dedup.
func (d *MemoryDedup) Remember(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if expires, ok := d.entries[key]; ok && now.Before(expires) {
		return true, nil
	}
	d.entries[key] = now.Add(ttl)
	return false, nil
}

// CleanExpired removes expired keys and returns how many were removed.
func (d *MemoryDedup) CleanExpired() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	removed := 0
	for k, expires := range d.entries {
		if !now.Before(expires) {
			delete(d.entries, k)
			removed++
		}
	}
	return removed
}
