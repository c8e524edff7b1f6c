package ha

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"tradegate.io/server/internal/storage"
	"tradegate.io/server/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingHooks struct {
	mu      sync.Mutex
	active  int
	passive int
	err     error
}

func (h *recordingHooks) OnBecameActive(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active++
	return h.err
}

func (h *recordingHooks) OnBecamePassive(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.passive++
	return h.err
}

func (h *recordingHooks) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active, h.passive
}

// barrierStore holds every Read until two reads have arrived, so both hosts
// observe the same record before either writes.
type barrierStore struct {
	*storage.MemoryLeaseStore
	armed  atomic.Bool
	arrive sync.WaitGroup
}

func newBarrierStore(conditional bool) *barrierStore {
	b := &barrierStore{MemoryLeaseStore: storage.NewMemoryLeaseStore(conditional)}
	b.arrive.Add(2)
	b.armed.Store(true)
	return b
}

func (b *barrierStore) Read(ctx context.Context) (*models.Lease, error) {
	l, err := b.MemoryLeaseStore.Read(ctx)
	if b.armed.Load() {
		b.arrive.Done()
		b.arrive.Wait()
	}
	return l, err
}

func newTestManager(t *testing.T, id string, kind models.HostKind, store LeaseStore, hooks TransitionHooks, clock *fakeClock) (*Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	cfg := DefaultConfig(id, kind)
	m := NewManager(cfg, store, hooks, zap.New(core))
	m.now = clock.Now
	return m, logs
}

func tick(m *Manager) {
	m.tick(context.Background())
	m.hookq.wait()
}

func TestManager_ColdStartClaims(t *testing.T) {
	clock := &fakeClock{now: t0}
	store := storage.NewMemoryLeaseStore(false)
	hooks := &recordingHooks{}
	m, _ := newTestManager(t, "laptop-1", models.HostKindLocal, store, hooks, clock)

	assert.Equal(t, models.ModePassive, m.Mode(), "undecided host reports passive")

	tick(m)
	assert.True(t, m.IsActive())

	l, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "laptop-1", l.OwnerHostID)
	assert.EqualValues(t, 1, l.FencingToken)
	assert.Equal(t, 45, l.TTLSeconds)

	// renewals keep the token and do not refire hooks
	for i := 0; i < 3; i++ {
		clock.Advance(15 * time.Second)
		tick(m)
	}
	l, _ = store.Read(context.Background())
	assert.EqualValues(t, 1, l.FencingToken)
	assert.Equal(t, clock.Now(), l.LastHeartbeat)

	active, passive := hooks.counts()
	assert.Equal(t, 1, active)
	assert.Equal(t, 0, passive)
}

func TestManager_PeerFollowsFreshLease(t *testing.T) {
	clock := &fakeClock{now: t0}
	store := storage.NewMemoryLeaseStore(false)
	localHooks, cloudHooks := &recordingHooks{}, &recordingHooks{}
	local, _ := newTestManager(t, "laptop-1", models.HostKindLocal, store, localHooks, clock)
	cloud, _ := newTestManager(t, "cloud-1", models.HostKindCloud, store, cloudHooks, clock)

	tick(local)
	tick(cloud)

	assert.True(t, local.IsActive())
	assert.False(t, cloud.IsActive())
	assert.Equal(t, 1, store.Writes(), "follower must not write")

	// the first decision fires a hook even when it is passive
	_, passive := cloudHooks.counts()
	assert.Equal(t, 1, passive)
}

func TestManager_FailoverAndSelfFencing(t *testing.T) {
	clock := &fakeClock{now: t0}
	store := storage.NewMemoryLeaseStore(false)
	localHooks, cloudHooks := &recordingHooks{}, &recordingHooks{}
	local, _ := newTestManager(t, "laptop-1", models.HostKindLocal, store, localHooks, clock)
	cloud, logs := newTestManager(t, "cloud-1", models.HostKindCloud, store, cloudHooks, clock)

	tick(local)
	tick(cloud)

	// local stops heartbeating; cloud sees the lease go stale after ttl
	clock.Advance(45 * time.Second)
	tick(cloud)
	assert.False(t, cloud.IsActive(), "lease exactly at ttl is still fresh")

	clock.Advance(time.Second)
	tick(cloud)
	assert.True(t, cloud.IsActive())

	l, _ := store.Read(context.Background())
	assert.Equal(t, "cloud-1", l.OwnerHostID)
	assert.EqualValues(t, 2, l.FencingToken)

	// local wakes up, observes a newer token and demotes without writing
	writes := store.Writes()
	tick(local)
	assert.False(t, local.IsActive())
	assert.Equal(t, writes, store.Writes())

	_, localPassive := localHooks.counts()
	assert.Equal(t, 1, localPassive)
	cloudActive, _ := cloudHooks.counts()
	assert.Equal(t, 1, cloudActive)

	snap := cloud.Snapshot()
	assert.Equal(t, "cloud-1", snap.OwnerHostID)
	assert.EqualValues(t, 2, snap.FencingToken)
	assert.EqualValues(t, 0, snap.HeartbeatAgeSeconds)
	assert.Equal(t, models.HostKindCloud, snap.LocalHostKind)

	assert.Equal(t, 1, logs.FilterMessage("took over stale lease").Len())
}

func TestManager_ColdStartRace_LastWriteWins(t *testing.T) {
	clock := &fakeClock{now: t0}
	store := newBarrierStore(false)
	a, _ := newTestManager(t, "laptop-1", models.HostKindLocal, store, &recordingHooks{}, clock)
	b, _ := newTestManager(t, "cloud-1", models.HostKindCloud, store, &recordingHooks{}, clock)

	var wg sync.WaitGroup
	for _, m := range []*Manager{a, b} {
		wg.Add(1)
		go func(m *Manager) {
			defer wg.Done()
			tick(m)
		}(m)
	}
	wg.Wait()
	store.armed.Store(false)

	// both claimed token 1; the dual-active window lasts at most one tick
	assert.True(t, a.IsActive())
	assert.True(t, b.IsActive())

	clock.Advance(15 * time.Second)
	tick(a)
	tick(b)

	assert.NotEqual(t, a.IsActive(), b.IsActive(), "exactly one host must be active")

	l, _ := store.Read(context.Background())
	winner := a
	if b.IsActive() {
		winner = b
	}
	assert.Equal(t, winner.config.HostID, l.OwnerHostID)
}

func TestManager_ColdStartRace_ConditionalStore(t *testing.T) {
	clock := &fakeClock{now: t0}
	store := newBarrierStore(true)
	a, _ := newTestManager(t, "laptop-1", models.HostKindLocal, store, &recordingHooks{}, clock)
	b, _ := newTestManager(t, "cloud-1", models.HostKindCloud, store, &recordingHooks{}, clock)

	var wg sync.WaitGroup
	for _, m := range []*Manager{a, b} {
		wg.Add(1)
		go func(m *Manager) {
			defer wg.Done()
			tick(m)
		}(m)
	}
	wg.Wait()
	store.armed.Store(false)

	// the store rejects the second claim, so there is never a dual-active window
	assert.NotEqual(t, a.IsActive(), b.IsActive(), "exactly one host must be active")
	assert.Equal(t, 1, store.Writes())

	clock.Advance(15 * time.Second)
	tick(a)
	tick(b)
	assert.NotEqual(t, a.IsActive(), b.IsActive())
}

func TestManager_RejectedWriteGoesPassive(t *testing.T) {
	clock := &fakeClock{now: t0}
	store := storage.NewMemoryLeaseStore(true)
	require.NoError(t, store.Write(context.Background(), models.Lease{
		OwnerHostID:   "cloud-1",
		LastHeartbeat: t0.Add(-time.Hour),
		TTLSeconds:    45,
		Mode:          models.ModeActive,
		FencingToken:  3,
	}))

	m, logs := newTestManager(t, "laptop-1", models.HostKindLocal, store, nil, clock)

	// cloud-1 takes over between our read and our write
	m.store = &rejectOnceStore{MemoryLeaseStore: store}

	tick(m)
	assert.False(t, m.IsActive())
	assert.Equal(t, 1, logs.FilterMessage("lease write rejected, re-deciding next tick").Len())
}

// rejectOnceStore rejects the first write as if a peer had won the race.
type rejectOnceStore struct {
	*storage.MemoryLeaseStore
	rejected bool
}

func (r *rejectOnceStore) Write(ctx context.Context, lease models.Lease) error {
	if !r.rejected {
		r.rejected = true
		return models.ErrLeaseRejected
	}
	return r.MemoryLeaseStore.Write(ctx, lease)
}

func TestManager_StoreOutageKeepsModeThenDemotes(t *testing.T) {
	clock := &fakeClock{now: t0}
	store := storage.NewMemoryLeaseStore(false)
	hooks := &recordingHooks{}
	m, _ := newTestManager(t, "laptop-1", models.HostKindLocal, store, hooks, clock)

	tick(m)
	require.True(t, m.IsActive())

	store.FailWith(errors.New("connection refused"), errors.New("connection refused"))

	// tolerance is 3 x 45s
	clock.Advance(90 * time.Second)
	tick(m)
	assert.True(t, m.IsActive(), "cached mode survives a short outage")

	clock.Advance(45 * time.Second)
	tick(m)
	assert.True(t, m.IsActive(), "exactly at tolerance is still tolerated")

	clock.Advance(time.Second)
	tick(m)
	assert.False(t, m.IsActive())

	_, passive := hooks.counts()
	assert.Equal(t, 1, passive)

	// once the store recovers the host reclaims its own lease
	store.FailWith(nil, nil)
	tick(m)
	assert.True(t, m.IsActive())
}

func TestManager_OutageOnPassiveHostIsHarmless(t *testing.T) {
	clock := &fakeClock{now: t0}
	store := storage.NewMemoryLeaseStore(false)
	m, _ := newTestManager(t, "cloud-1", models.HostKindCloud, store, nil, clock)

	store.FailWith(errors.New("timeout"), nil)
	clock.Advance(10 * time.Minute)
	tick(m)

	assert.Equal(t, models.Mode(""), m.mode, "no decision without a read")
	assert.Equal(t, models.ModePassive, m.Mode())
}

func TestManager_HookFailureDoesNotBlock(t *testing.T) {
	clock := &fakeClock{now: t0}
	store := storage.NewMemoryLeaseStore(false)
	hooks := &recordingHooks{err: errors.New("endpoint down")}
	m, logs := newTestManager(t, "laptop-1", models.HostKindLocal, store, hooks, clock)

	tick(m)
	assert.True(t, m.IsActive())
	assert.Equal(t, 1, logs.FilterMessage("transition hook failed").Len())
}

// standbyHooks models the standby's paused state as a local host drives it:
// becoming active pauses the standby slowly, becoming passive resumes it.
type standbyHooks struct {
	mu         sync.Mutex
	paused     bool
	applied    []string
	pauseDelay time.Duration
}

func (h *standbyHooks) OnBecameActive(ctx context.Context) error {
	select {
	case <-time.After(h.pauseDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	h.apply("pause", true)
	return nil
}

func (h *standbyHooks) OnBecamePassive(context.Context) error {
	h.apply("resume", false)
	return nil
}

func (h *standbyHooks) apply(action string, paused bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = paused
	h.applied = append(h.applied, action)
}

func (h *standbyHooks) state() (bool, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused, append([]string(nil), h.applied...)
}

func TestManager_SlowHookCannotOverrideLaterTransition(t *testing.T) {
	clock := &fakeClock{now: t0}
	hooks := &standbyHooks{pauseDelay: 500 * time.Millisecond}
	m, logs := newTestManager(t, "laptop-1", models.HostKindLocal, storage.NewMemoryLeaseStore(false), hooks, clock)

	m.setMode(models.ModeActive, ReasonClaim)
	time.Sleep(20 * time.Millisecond) // let the pause start
	m.setMode(models.ModePassive, ReasonSuperseded)
	m.hookq.wait()

	paused, applied := hooks.state()
	assert.False(t, paused, "standby must end up running while the local host is passive")
	assert.Equal(t, []string{"resume"}, applied)
	assert.Equal(t, 1, logs.FilterMessage("transition hook superseded").Len())
}

func TestManager_RapidTransitionsEndOnLatestHook(t *testing.T) {
	clock := &fakeClock{now: t0}
	hooks := &standbyHooks{pauseDelay: 50 * time.Millisecond}
	m, _ := newTestManager(t, "laptop-1", models.HostKindLocal, storage.NewMemoryLeaseStore(false), hooks, clock)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.setMode(models.ModeActive, ReasonClaim)
			} else {
				m.setMode(models.ModePassive, ReasonSuperseded)
			}
		}(i)
	}
	wg.Wait()
	m.hookq.wait()

	want := "resume"
	if m.IsActive() {
		want = "pause"
	}
	paused, applied := hooks.state()
	require.NotEmpty(t, applied)
	assert.Equal(t, want, applied[len(applied)-1], "last applied hook must match the final mode")
	assert.Equal(t, m.IsActive(), paused)
}

func TestManager_StopReleasesLease(t *testing.T) {
	clock := &fakeClock{now: t0}
	store := storage.NewMemoryLeaseStore(true)
	localHooks := &recordingHooks{}
	core, _ := observer.New(zap.InfoLevel)
	cfg := DefaultConfig("laptop-1", models.HostKindLocal)
	cfg.HeartbeatInterval = time.Hour
	local := NewManager(cfg, store, localHooks, zap.New(core))
	local.now = clock.Now

	require.NoError(t, local.Start())
	assert.Error(t, local.Start(), "second start must fail")
	assert.Eventually(t, local.IsActive, time.Second, 5*time.Millisecond)
	local.hookq.wait()

	require.NoError(t, local.Stop())
	assert.False(t, local.IsActive())

	l, _ := store.Read(context.Background())
	assert.Equal(t, models.ModePassive, l.Mode)
	assert.EqualValues(t, 1, l.FencingToken)
	assert.True(t, l.IsStale(clock.Now()), "released lease must be stale immediately")

	active, passive := localHooks.counts()
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, passive)

	// the peer takes over on its very next tick
	cloud, _ := newTestManager(t, "cloud-1", models.HostKindCloud, store, nil, clock)
	tick(cloud)
	assert.True(t, cloud.IsActive())
	l, _ = store.Read(context.Background())
	assert.EqualValues(t, 2, l.FencingToken)
}

func TestManager_StopWhilePassiveDoesNotWrite(t *testing.T) {
	clock := &fakeClock{now: t0}
	store := storage.NewMemoryLeaseStore(false)
	require.NoError(t, store.Write(context.Background(), models.Lease{
		OwnerHostID:   "laptop-1",
		LastHeartbeat: t0,
		TTLSeconds:    45,
		Mode:          models.ModeActive,
		FencingToken:  1,
	}))

	core, _ := observer.New(zap.InfoLevel)
	cfg := DefaultConfig("cloud-1", models.HostKindCloud)
	cfg.HeartbeatInterval = time.Hour
	cloud := NewManager(cfg, store, nil, zap.New(core))
	cloud.now = clock.Now

	require.NoError(t, cloud.Start())
	assert.Eventually(t, func() bool { return cloud.Snapshot().OwnerHostID == "laptop-1" }, time.Second, 5*time.Millisecond)
	require.NoError(t, cloud.Stop())

	assert.Equal(t, 1, store.Writes())
}

func TestDemotionLease(t *testing.T) {
	l := DemotionLease("laptop-1", models.HostKindLocal, 4, 45, t0)

	assert.Equal(t, models.ModePassive, l.Mode)
	assert.EqualValues(t, 4, l.FencingToken)
	assert.Equal(t, t0.Add(-46*time.Second), l.LastHeartbeat)
	assert.True(t, l.IsStale(t0))

	stored := heldBy("laptop-1", 4, t0)
	assert.True(t, l.CanReplace(stored), "owner may release its own lease")
}
