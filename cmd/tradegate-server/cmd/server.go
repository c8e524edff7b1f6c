package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"tradegate.io/server/internal/api"
	"tradegate.io/server/internal/api/handlers"
	"tradegate.io/server/internal/command"
	"tradegate.io/server/internal/config"
	"tradegate.io/server/internal/control"
	"tradegate.io/server/internal/ha"
	"tradegate.io/server/internal/hooks"
	"tradegate.io/server/internal/intake"
	"tradegate.io/server/internal/logging"
	"tradegate.io/server/internal/policy"
	"tradegate.io/server/internal/ratelimit"
	"tradegate.io/server/internal/service"
	"tradegate.io/server/internal/storage"
	"tradegate.io/server/models"
)

// housekeepingInterval is how often expired dedup keys and old journal rows are removed.
const housekeepingInterval = time.Minute

// leaseBackend is a lease store the readiness probe can ping.
type leaseBackend interface {
	ha.LeaseStore
	handlers.Pinger
}

// server owns every long-lived component of one tradegate host.
type server struct {
	cfg    *config.Config
	logger *zap.Logger

	db      *sql.DB
	state   *storage.PebbleStore
	lease   leaseBackend
	journal *service.SignalJournal

	flags    *control.State
	manager  *ha.Manager
	watchdog *policy.Watchdog
	limiter  *ratelimit.Limiter
	dedup    storage.Dedup
	router   *gin.Engine
}

// newServer opens the stores and wires the components. Close must be called
// even when newServer fails partway.
func newServer(cfg *config.Config, logger *zap.Logger) (*server, error) {
	s := &server{cfg: cfg, logger: logger}

	if err := s.openStores(); err != nil {
		return s, err
	}

	initial := models.DefaultControlFlags()
	var persist control.Persister
	if s.state != nil {
		saved, err := s.state.LoadFlags()
		if err != nil {
			return s, fmt.Errorf("failed to load control flags: %w", err)
		}
		if saved != nil {
			initial = *saved
			logger.Info("restored control flags",
				zap.Bool("panic_on", saved.PanicOn),
				zap.Bool("signals_on", saved.SignalsOn),
				zap.Bool("approve_on", saved.ApproveOn),
			)
		}
		persist = s.state
	}
	s.flags = control.NewState(initial, persist, logger)

	kind := models.HostKind(cfg.Host.Kind)
	dispatcher := hooks.NewDispatcher(cfg.HooksDispatcherConfig(), kind, logger)
	s.manager = ha.NewManager(cfg.HAManagerConfig(), s.lease, dispatcher, logger)

	cal, err := policy.LoadCalendar(cfg.Calendar.Path)
	if err != nil {
		return s, err
	}
	eval, err := policy.NewEvaluator(cal, cfg.Calendar.Timezone, cfg.Calendar.Markets)
	if err != nil {
		return s, err
	}
	s.watchdog = policy.NewWatchdog(eval, s.flags, cfg.Calendar.Interval, logger)

	s.limiter = ratelimit.NewLimiter(ratelimit.Config{
		CommandsPerWindow:          cfg.Commands.PerMinute,
		CommandWindow:              time.Minute,
		SignatureFailuresPerWindow: cfg.Intake.SignatureFailuresPerHour,
		SignatureFailureWindow:     time.Hour,
	})

	if cfg.Intake.DedupBackend == config.DedupPebble && s.state != nil {
		s.dedup = s.state
	} else {
		s.dedup = storage.NewMemoryDedup()
	}

	gate := policy.NewGate(s.manager, s.flags, logger)

	var journal intake.Journal
	var journalReader handlers.JournalReader
	if s.journal != nil {
		journal = s.journal
		journalReader = s.journal
	}
	pipeline := intake.NewPipeline(gate, s.dedup, journal, cfg.Intake.DedupTTL, logger)
	processor := command.NewProcessor(cfg.Commands.OwnerID, s.flags, s.manager, dispatcher, s.limiter, logger)

	s.router = api.SetupRouter(&api.RouterConfig{
		Logger:           logger,
		HostID:           cfg.Host.ID,
		Lease:            s.manager,
		Store:            s.lease,
		Flags:            s.flags,
		Pipeline:         pipeline,
		Journal:          journalReader,
		Commands:         processor,
		Verifier:         intake.NewVerifier(cfg.VerifierConfig()),
		SignatureLimiter: s.limiter,
		WebhookSecret:    cfg.Commands.WebhookSecret,
		AllowOrigins:     cfg.Server.CORSOrigins,
		IntakeRPS:        cfg.Intake.RatePerSecond,
		IntakeBurst:      cfg.Intake.Burst,
		MaxBodyBytes:     cfg.Intake.MaxBodyBytes,
	})

	return s, nil
}

// openStores opens the host-local state first so a saved host id is known
// before anything records it.
func (s *server) openStores() error {
	if s.cfg.Store.StatePath != "" {
		state := storage.NewPebbleStore(s.cfg.Store.StatePath, s.logger)
		if err := state.Open(); err != nil {
			return err
		}
		s.state = state

		if err := resolveHostID(&s.cfg.Host, state); err != nil {
			return err
		}
	}
	s.logger.Info("host identity", zap.String(logging.FieldHostID, s.cfg.Host.ID), zap.String(logging.FieldHostKind, s.cfg.Host.Kind))

	switch s.cfg.Store.Backend {
	case config.StoreSQLite:
		db, err := OpenDatabase(s.cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		s.db = db
		s.lease = service.NewLeaseService(db, s.logger)
		s.journal = service.NewSignalJournal(db, s.cfg.Host.ID, s.logger)
		s.logger.Info("lease store opened", zap.String("backend", "sqlite"), zap.String("path", s.cfg.Store.SQLitePath))
	default:
		s.lease = storage.NewMemoryLeaseStore(true)
		s.logger.Warn("using in-memory lease store, failover between processes is disabled")
	}

	return nil
}

// Run starts the HA manager and serves until ctx is cancelled, then releases
// the lease if this host holds it.
func (s *server) Run(ctx context.Context) error {
	if err := s.manager.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.serveHTTP(gctx) })
	g.Go(func() error { return s.watchdog.Run(gctx) })
	g.Go(func() error {
		s.housekeeping(gctx)
		return nil
	})

	err := g.Wait()

	if stopErr := s.manager.Stop(); stopErr != nil && err == nil {
		s.logger.Warn("lease release failed", zap.Error(stopErr))
	}
	return err
}

func (s *server) serveHTTP(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.cfg.Server.Listen))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// housekeeping removes expired dedup keys and journal rows past retention.
func (s *server) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *server) sweep(ctx context.Context) {
	switch d := s.dedup.(type) {
	case *storage.PebbleStore:
		if n, err := d.CleanExpired(); err != nil {
			s.logger.Warn("dedup cleanup failed", zap.Error(err))
		} else if n > 0 {
			s.logger.Debug("expired dedup keys removed", zap.Int("count", n))
		}
	case *storage.MemoryDedup:
		d.CleanExpired()
	}

	if s.journal != nil && s.cfg.Intake.JournalRetention > 0 {
		cutoff := time.Now().Add(-s.cfg.Intake.JournalRetention)
		if _, err := s.journal.Prune(ctx, cutoff); err != nil {
			s.logger.Warn("journal prune failed", zap.Error(err))
		}
	}
}

// Close releases stores. Safe after a partial newServer.
func (s *server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.state != nil {
		if err := s.state.Close(); err != nil {
			s.logger.Warn("failed to close state store", zap.Error(err))
		}
	}
	if s.db != nil {
		s.db.Close()
	}
}

// hostIDStore keeps a host id across restarts.
type hostIDStore interface {
	HostID(candidate string) (string, error)
}

// resolveHostID swaps a generated host id for the one saved by an earlier
// run, so a restarted host still recognises its own lease. Configured ids
// are used as given.
func resolveHostID(host *config.HostConfig, store hostIDStore) error {
	if !host.Generated {
		return nil
	}
	id, err := store.HostID(host.ID)
	if err != nil {
		return fmt.Errorf("failed to load host id: %w", err)
	}
	host.ID = id
	return nil
}
