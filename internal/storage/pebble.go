package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
	"tradegate.io/server/internal/metrics"
	"tradegate.io/server/models"
)

const (
	dedupPrefix = "dedup/"
	flagsKey    = "control/flags"
	hostIDKey   = "host/id"
)

// dedupRecord is the stored value of an idempotency key.
type dedupRecord struct {
	ExpiresAt int64 `json:"expires_at"`
}

// PebbleStore is a Pebble-backed host-local store for idempotency keys, the
// control flag snapshot and the generated host id. It survives restarts of this host but is never
// shared with the peer.
type PebbleStore struct {
	db     *pebble.DB
	path   string
	logger *zap.Logger

	// serializes check-and-set in Remember and HostID
	mu sync.Mutex

	// For testing - allow overriding time functions
	now func() time.Time
}

// NewPebbleStore creates a PebbleStore instance (not yet opened).
func NewPebbleStore(dbPath string, logger *zap.Logger) *PebbleStore {
	return &PebbleStore{
		path:   dbPath,
		logger: logger,
		now:    time.Now,
	}
}

// Open opens the Pebble database.
func (p *PebbleStore) Open() error {
	opts := &pebble.Options{
		Logger: &pebbleLogger{p.logger},
	}
	db, err := pebble.Open(p.path, opts)
	if err != nil {
		return fmt.Errorf("pebble open %s: %w", p.path, err)
	}
	p.db = db
	p.logger.Info("pebble store opened", zap.String("path", p.path))
	return nil
}

// Close flushes and closes the database.
func (p *PebbleStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Remember implements Dedup.
func (p *PebbleStore) Remember(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	start := time.Now()
	defer observe("remember", start)

	p.mu.Lock()
	defer p.mu.Unlock()

	k := []byte(dedupPrefix + key)
	now := p.now()

	data, closer, err := p.db.Get(k)
	switch {
	case err == nil:
		var rec dedupRecord
		uerr := json.Unmarshal(data, &rec)
		closer.Close()
		if uerr == nil && rec.ExpiresAt > now.UnixNano() {
			return true, nil
		}
	case !errors.Is(err, pebble.ErrNotFound):
		return false, fmt.Errorf("pebble get: %w", err)
	}

	value, err := json.Marshal(dedupRecord{ExpiresAt: now.Add(ttl).UnixNano()})
	if err != nil {
		return false, fmt.Errorf("marshal: %w", err)
	}
	if err := p.db.Set(k, value, pebble.Sync); err != nil {
		return false, fmt.Errorf("pebble set: %w", err)
	}
	return false, nil
}

// CleanExpired removes all idempotency keys whose ttl has passed.
// Returns the count of removed entries.
func (p *PebbleStore) CleanExpired() (int, error) {
	now := p.now().UnixNano()
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(dedupPrefix),
		UpperBound: []byte("dedup0"),
	})
	if err != nil {
		return 0, fmt.Errorf("pebble iter: %w", err)
	}
	defer iter.Close()

	var expired [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var rec dedupRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		if rec.ExpiresAt <= now {
			k := make([]byte, len(iter.Key()))
			copy(k, iter.Key())
			expired = append(expired, k)
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}

	if len(expired) == 0 {
		return 0, nil
	}

	batch := p.db.NewBatch()
	defer batch.Close()
	for _, k := range expired {
		if err := batch.Delete(k, nil); err != nil {
			return 0, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, err
	}

	p.logger.Debug("cleaned expired idempotency keys", zap.Int("count", len(expired)))
	return len(expired), nil
}

// LoadFlags returns the persisted control flags, or nil when none were saved.
func (p *PebbleStore) LoadFlags() (*models.ControlFlags, error) {
	start := time.Now()
	defer observe("load_flags", start)

	data, closer, err := p.db.Get([]byte(flagsKey))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()

	var flags models.ControlFlags
	if err := json.Unmarshal(data, &flags); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return &flags, nil
}

// SaveFlags persists the control flags.
func (p *PebbleStore) SaveFlags(flags models.ControlFlags) error {
	start := time.Now()
	defer observe("save_flags", start)

	data, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := p.db.Set([]byte(flagsKey), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

// HostID returns the host id saved by an earlier run. On first use it saves
// candidate and returns it, so a generated id stays stable across restarts.
func (p *PebbleStore) HostID(candidate string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, closer, err := p.db.Get([]byte(hostIDKey))
	switch {
	case err == nil:
		id := string(data)
		closer.Close()
		if id != "" {
			return id, nil
		}
	case !errors.Is(err, pebble.ErrNotFound):
		return "", fmt.Errorf("pebble get: %w", err)
	}

	if err := p.db.Set([]byte(hostIDKey), []byte(candidate), pebble.Sync); err != nil {
		return "", fmt.Errorf("pebble set: %w", err)
	}
	return candidate, nil
}

func observe(op string, start time.Time) {
	metrics.StoreOpDuration.WithLabelValues("pebble", op).Observe(time.Since(start).Seconds())
}

// pebbleLogger adapts zap.Logger to the pebble.Logger interface.
type pebbleLogger struct {
	z *zap.Logger
}

func (l *pebbleLogger) Infof(format string, args ...any) {
	l.z.Sugar().Infof(format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...any) {
	l.z.Sugar().Errorf(format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...any) {
	l.z.Sugar().Fatalf(format, args...)
}
