package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"tradegate.io/server/internal/config"
	"tradegate.io/server/internal/logging"
	"tradegate.io/server/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a tradegate host",
	Long: `Run the HTTP API, the lease heartbeat and the calendar watchdog.

Configuration is read from the config file, TRADEGATE_* environment
variables and the flags below. The owner id and the webhook secret are
required.

On SIGTERM or SIGINT the host stops serving and, if it holds the lease,
writes a stale lease so the peer takes over on its next heartbeat.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	config.RegisterFlags(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LoggingConfig())
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting tradegate-server",
		zap.String("version", Version),
		zap.String("listen_addr", cfg.Server.Listen),
		zap.String("store", cfg.Store.Backend),
		zap.Duration("heartbeat_interval", cfg.HA.HeartbeatInterval),
		zap.Duration("lease_ttl", cfg.HA.LeaseTTL),
	)

	if err := metrics.Init(); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(cfg, logger)
	defer srv.Close()
	if err != nil {
		logger.Error("failed to start", zap.Error(err))
		return err
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}

	logger.Info("tradegate-server stopped")
	return nil
}
