package ha

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"tradegate.io/server/internal/logging"
	"tradegate.io/server/internal/metrics"
	"tradegate.io/server/models"
)

// Manager runs the heartbeat loop for one host.
//
// The manager handles:
// - Reading the shared lease and deciding the local mode every interval
// - Claiming, renewing, or taking over the lease
// - Keeping the cached mode through store outages, demoting after a long one
// - Firing transition hooks once per mode change
// - A best-effort demotion write on shutdown
type Manager struct {
	config *Config
	store  LeaseStore
	logger *zap.Logger

	mu        sync.RWMutex
	mode      models.Mode
	lastToken int64
	lease     *models.Lease
	lastWrite time.Time
	started   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	hookq  *hookQueue

	// For testing - allow overriding time functions
	now func() time.Time
}

// NewManager creates a new HA manager.
//
// Parameters:
//   - config: HA configuration; ttl is clamped to at least 3 heartbeat intervals
//   - store: Shared lease store
//   - hooks: Transition hooks (may be nil)
//   - logger: Zap logger for structured logging
//
// Returns:
//   - Configured Manager in the unknown mode
func NewManager(config *Config, store LeaseStore, hooks TransitionHooks, logger *zap.Logger) *Manager {
	config.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	logger = logger.With(append(logging.Host(config.HostID, config.HostKind), logging.Component("ha"))...)

	return &Manager{
		config: config,
		store:  store,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		hookq:  newHookQueue(hooks, logger),
		now:    time.Now,
	}
}

// Start runs the first tick immediately and then starts the heartbeat goroutine.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("ha manager already started")
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info("HA manager started",
		zap.Duration("heartbeat_interval", m.config.HeartbeatInterval),
		zap.Duration("lease_ttl", m.config.LeaseTTL),
	)

	m.wg.Add(1)
	go m.heartbeatLoop()

	return nil
}

// Stop stops scheduling ticks and, if this host is active, writes a lease that
// is already stale so the peer can take over on its next tick.
//
// Returns:
//   - error: The demotion write error, if any. The local mode is passive either way.
func (m *Manager) Stop() error {
	m.logger.Info("stopping HA manager")

	m.cancel()
	m.wg.Wait()

	var releaseErr error
	if m.IsActive() {
		ctx, cancel := context.WithTimeout(context.Background(), m.config.HeartbeatInterval)
		releaseErr = m.release(ctx)
		cancel()
		if releaseErr != nil {
			m.logger.Warn("demotion write failed, peer will take over after ttl", zap.Error(releaseErr))
		}
		m.setMode(models.ModePassive, ReasonShutdown)
	}

	m.hookq.wait()

	m.logger.Info("HA manager stopped")
	return releaseErr
}

// Mode returns the cached local mode. A host that has not decided yet is passive.
func (m *Manager) Mode() models.Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.mode == "" {
		return models.ModePassive
	}
	return m.mode
}

// IsActive returns whether this host currently believes it holds the lease.
func (m *Manager) IsActive() bool {
	return m.Mode() == models.ModeActive
}

// Snapshot returns the last observed lease for operator reporting.
func (m *Manager) Snapshot() models.LeaseSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := models.LeaseSnapshot{
		Mode:          models.ModePassive,
		LocalHostID:   m.config.HostID,
		LocalHostKind: m.config.HostKind,
	}
	if m.lease == nil {
		return snap
	}
	snap.OwnerHostID = m.lease.OwnerHostID
	snap.HostKind = m.lease.HostKind
	snap.Mode = m.lease.Mode
	snap.FencingToken = m.lease.FencingToken
	snap.HeartbeatAgeSeconds = int64(m.lease.Age(m.now()) / time.Second)
	return snap
}

// heartbeatLoop ticks immediately, then every heartbeat interval until stopped.
func (m *Manager) heartbeatLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.HeartbeatInterval)
	defer ticker.Stop()

	m.tick(m.ctx)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("heartbeat loop stopped")
			return

		case <-ticker.C:
			m.tick(m.ctx)
		}
	}
}

// tick performs one read, decide, write cycle. Store calls are bounded by the
// heartbeat interval. A rejected write is not retried within the tick.
func (m *Manager) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.HAHeartbeatDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, m.config.HeartbeatInterval)
	defer cancel()

	current, err := m.store.Read(ctx)
	if err != nil {
		m.handleStoreError("read", err)
		return
	}

	m.mu.Lock()
	m.lease = current
	local := LocalState{
		HostID:    m.config.HostID,
		HostKind:  m.config.HostKind,
		Mode:      m.mode,
		LastToken: m.lastToken,
	}
	m.mu.Unlock()

	now := m.now()
	decision := Decide(current, local, now)

	if decision.Reason == ReasonSuperseded {
		m.logger.Warn("observed newer fencing token, self-fencing",
			zap.Int64("last_token", local.LastToken),
			logging.Lease(current),
		)
	}

	if !decision.ShouldWrite {
		m.setMode(decision.Mode, decision.Reason)
		return
	}

	next := models.Lease{
		OwnerHostID:   m.config.HostID,
		HostKind:      m.config.HostKind,
		LastHeartbeat: now,
		TTLSeconds:    m.config.ttlSeconds(),
		Mode:          models.ModeActive,
		FencingToken:  decision.FencingToken,
	}

	if err := m.store.Write(ctx, next); err != nil {
		if errors.Is(err, models.ErrLeaseRejected) {
			metrics.HALeaseRejections.Inc()
			m.logger.Info("lease write rejected, re-deciding next tick",
				zap.Int64(logging.FieldFencingToken, next.FencingToken),
				logging.Reason(string(decision.Reason)),
			)
			m.setMode(models.ModePassive, ReasonRejected)
			return
		}
		m.handleStoreError("write", err)
		return
	}

	m.mu.Lock()
	m.lastToken = next.FencingToken
	m.lastWrite = now
	m.lease = &next
	m.mu.Unlock()

	metrics.HAFencingToken.Set(float64(next.FencingToken))
	metrics.HALastHeartbeat.Set(float64(now.Unix()))

	if decision.Reason == ReasonTakeover {
		m.logger.Info("took over stale lease",
			zap.Int64(logging.FieldFencingToken, next.FencingToken),
			zap.String("previous_owner", current.OwnerHostID),
		)
	}

	m.setMode(models.ModeActive, decision.Reason)
}

// handleStoreError keeps the cached mode unless this host is active and has
// not written successfully for longer than the outage tolerance.
func (m *Manager) handleStoreError(op string, err error) {
	metrics.HAHeartbeatErrors.WithLabelValues(op).Inc()

	m.mu.RLock()
	mode := m.mode
	lastWrite := m.lastWrite
	m.mu.RUnlock()

	m.logger.Warn("lease store unavailable, keeping cached mode",
		zap.String(logging.FieldOperation, op),
		logging.Mode(mode),
		zap.Error(err),
	)

	if mode != models.ModeActive {
		return
	}
	if outage := m.now().Sub(lastWrite); outage > m.config.outageTolerance() {
		m.logger.Error("lease store outage exceeded tolerance, demoting",
			zap.Duration("outage", outage),
			zap.Duration("tolerance", m.config.outageTolerance()),
		)
		m.setMode(models.ModePassive, ReasonOutage)
	}
}

// release writes the demotion record: same owner and token, mode passive,
// heartbeat backdated past the ttl.
func (m *Manager) release(ctx context.Context) error {
	m.mu.RLock()
	token := m.lastToken
	m.mu.RUnlock()

	lease := DemotionLease(m.config.HostID, m.config.HostKind, token, m.config.ttlSeconds(), m.now())
	if err := m.store.Write(ctx, lease); err != nil {
		return err
	}

	m.mu.Lock()
	m.lease = &lease
	m.mu.Unlock()
	m.logger.Info("released lease", zap.Int64(logging.FieldFencingToken, token))
	return nil
}

// DemotionLease builds a lease that any peer will see as stale immediately.
func DemotionLease(hostID string, kind models.HostKind, token int64, ttlSeconds int, now time.Time) models.Lease {
	ttl := time.Duration(ttlSeconds) * time.Second
	return models.Lease{
		OwnerHostID:   hostID,
		HostKind:      kind,
		LastHeartbeat: now.Add(-(ttl + time.Second)),
		TTLSeconds:    ttlSeconds,
		Mode:          models.ModePassive,
		FencingToken:  token,
	}
}

// setMode updates the cached mode and fires the matching hook on change.
// The unknown initial mode counts as a change, so the first decision always fires.
func (m *Manager) setMode(next models.Mode, reason DecisionReason) {
	m.mu.Lock()
	prev := m.mode
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.mode = next
	// enqueue under the lock so hook order always follows mode order
	m.dispatchHook(next)
	m.mu.Unlock()

	from := string(prev)
	if from == "" {
		from = "unknown"
	}
	metrics.HAStateTransitions.WithLabelValues(from, string(next), string(reason)).Inc()
	if next == models.ModeActive {
		metrics.HAIsActive.Set(1)
	} else {
		metrics.HAIsActive.Set(0)
	}

	m.logger.Info("mode changed",
		zap.String("from_mode", from),
		logging.Mode(next),
		logging.Reason(string(reason)),
	)
}

// dispatchHook hands the transition to the ordered hook queue so a slow
// endpoint never delays the next tick.
func (m *Manager) dispatchHook(mode models.Mode) {
	m.hookq.enqueue(mode)
}
