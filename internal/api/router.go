// Package api provides the REST API implementation for tradegate.
//
// This package wires routing and middleware around the handlers. It uses Gin
// for HTTP handling and integrates with the HA manager, the signal intake
// pipeline and the command processor through small interfaces.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"tradegate.io/server/internal/api/handlers"
	"tradegate.io/server/internal/api/middleware"
	"tradegate.io/server/internal/intake"
	"tradegate.io/server/internal/metrics"
	"tradegate.io/server/internal/ratelimit"
)

const (
	defaultIntakeRPS   = 5.0
	defaultIntakeBurst = 20
)

// RouterConfig holds configuration for setting up the HTTP router.
type RouterConfig struct {
	// Logger is the Zap logger for request logging.
	Logger *zap.Logger

	// HostID is this host's identifier.
	HostID string

	// Lease provides the mode and cached lease (the HA manager).
	Lease middleware.LeaseView

	// Store is pinged by the readiness probe. May be nil.
	Store handlers.Pinger

	// Flags is the control flag state.
	Flags handlers.FlagSource

	// Pipeline processes verified signals.
	Pipeline handlers.SignalProcessor

	// Journal lists recent signals. May be nil.
	Journal handlers.JournalReader

	// Commands executes owner commands.
	Commands handlers.CommandProcessor

	// Verifier authenticates signal bodies.
	Verifier *intake.Verifier

	// SignatureLimiter counts bad signatures per client IP.
	SignatureLimiter *ratelimit.Limiter

	// WebhookSecret protects the command and operator endpoints.
	WebhookSecret string

	// AllowOrigins is the list of allowed CORS origins. Empty disables CORS.
	AllowOrigins []string

	// IntakeRPS and IntakeBurst cap total signal throughput.
	IntakeRPS   float64
	IntakeBurst int

	// MaxBodyBytes bounds signal bodies.
	MaxBodyBytes int64
}

// SetupRouter creates and configures the Gin HTTP router with all routes and middleware.
//
// This function sets up:
// - Global middleware (recovery, metrics, logging, CORS, rate limiting)
// - Health check endpoints (no auth required)
// - Signal intake (signature verified)
// - Owner commands and operator reads (webhook secret)
// - Status query (no auth required)
//
// Parameters:
//   - config: Router configuration
//
// Returns:
//   - Configured Gin engine ready to serve requests
func SetupRouter(config *RouterConfig) *gin.Engine {
	router := gin.New()

	// Recovery middleware (recover from panics)
	router.Use(gin.Recovery())

	// Metrics middleware (should be early to capture all requests)
	router.Use(middleware.MetricsMiddleware())

	router.Use(middleware.RequestLogger(config.Logger))

	if len(config.AllowOrigins) > 0 {
		router.Use(middleware.CORS(config.AllowOrigins))
	}

	// Global rate limiting by IP (applies to all endpoints)
	router.Use(middleware.RateLimitByIP(100.0, 200)) // 100 req/s per IP

	healthHandler := handlers.NewHealthHandler(config.Store, config.Lease, config.HostID)
	signalHandler := handlers.NewSignalHandler(config.Pipeline, config.Journal)
	commandHandler := handlers.NewCommandHandler(config.Commands)
	statusHandler := handlers.NewStatusHandler(config.Lease, config.Flags)

	intakeRPS, intakeBurst := config.IntakeRPS, config.IntakeBurst
	if intakeRPS <= 0 {
		intakeRPS = defaultIntakeRPS
	}
	if intakeBurst <= 0 {
		intakeBurst = defaultIntakeBurst
	}
	guard := middleware.NewSignatureGuard(config.Verifier, config.SignatureLimiter, config.MaxBodyBytes)
	requireSecret := middleware.RequireWebhookSecret(config.WebhookSecret)

	// Metrics endpoint (no authentication required)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		metrics.Registry,
		promhttp.HandlerOpts{},
	)))

	// Health check routes (no authentication required)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Liveness)
		health.GET("/ready", healthHandler.Readiness)
		health.GET("/active", healthHandler.Active)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.ActiveOwnerHeaders(config.Lease))
	{
		// POST /api/v1/signals - Inbound trading alert
		v1.POST("/signals",
			middleware.RateLimitGlobal(intakeRPS, intakeBurst),
			guard.VerifySignature(),
			signalHandler.Receive)

		// GET /api/v1/signals/recent - Journal of recent gate outcomes
		v1.GET("/signals/recent", requireSecret, signalHandler.Recent)

		// POST /api/v1/commands - Owner command (native or Telegram update)
		v1.POST("/commands", requireSecret, commandHandler.Handle)

		// GET /api/v1/status - Lease and control flag summary
		v1.GET("/status", statusHandler.Status)

		// GET /api/v1/lease - Full cached lease view
		v1.GET("/lease", requireSecret, statusHandler.Lease)
	}

	return router
}
