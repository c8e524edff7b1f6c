// Package config loads tradegate server configuration.
//
// Sources are layered lowest to highest: built-in defaults, an optional YAML
// file, TRADEGATE_* environment variables (plus a few legacy names), and
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"tradegate.io/server/internal/ha"
	"tradegate.io/server/internal/hooks"
	"tradegate.io/server/internal/intake"
	"tradegate.io/server/internal/logging"
	"tradegate.io/server/internal/policy"
	"tradegate.io/server/internal/util"
	"tradegate.io/server/models"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "TRADEGATE"

// Lease store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Dedup backends.
const (
	DedupPebble = "pebble"
	DedupMemory = "memory"
)

// Config is the root configuration struct.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Host     HostConfig     `mapstructure:"host"`
	HA       HAConfig       `mapstructure:"ha"`
	Store    StoreConfig    `mapstructure:"store"`
	Intake   IntakeConfig   `mapstructure:"intake"`
	Commands CommandsConfig `mapstructure:"commands"`
	Hooks    HooksConfig    `mapstructure:"hooks"`
	Calendar CalendarConfig `mapstructure:"calendar"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HostConfig identifies this host.
type HostConfig struct {
	// ID defaults to <hostname[:12]>-<random 6 hex>. A generated id is
	// replaced by the one saved in the state store, if any, at startup.
	ID string `mapstructure:"id"`

	// Generated is set by Finalize when ID was not configured.
	Generated bool `mapstructure:"-"`

	// Kind is local or cloud; empty autodetects.
	Kind string `mapstructure:"kind"`
}

// HAConfig holds heartbeat timing.
type HAConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	LeaseTTL          time.Duration `mapstructure:"lease_ttl"`
	OutageMultiplier  int           `mapstructure:"outage_multiplier"`
}

// StoreConfig selects the shared lease store and the local state store.
type StoreConfig struct {
	// Backend is sqlite (shared file, conditional writes) or memory (single process).
	Backend string `mapstructure:"backend"`

	// SQLitePath is the shared lease database. It also holds the signal journal.
	SQLitePath string `mapstructure:"sqlite_path"`

	// StatePath is the local Pebble directory for dedup keys, control flags
	// and the generated host id.
	StatePath string `mapstructure:"state_path"`
}

// IntakeConfig holds signal intake settings.
type IntakeConfig struct {
	Secret           string        `mapstructure:"secret"`
	HMACRequired     bool          `mapstructure:"hmac_required"`
	SignatureHeaders []string      `mapstructure:"signature_headers"`
	DedupBackend     string        `mapstructure:"dedup_backend"`
	DedupTTL         time.Duration `mapstructure:"dedup_ttl"`
	RatePerSecond    float64       `mapstructure:"rate_per_second"`
	Burst            int           `mapstructure:"burst"`
	MaxBodyBytes     int64         `mapstructure:"max_body_bytes"`
	JournalRetention time.Duration `mapstructure:"journal_retention"`

	// SignatureFailuresPerHour bounds bad signatures per client IP.
	SignatureFailuresPerHour int `mapstructure:"signature_failures_per_hour"`
}

// CommandsConfig holds owner command settings.
type CommandsConfig struct {
	OwnerID       string `mapstructure:"owner_id"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	PerMinute     int    `mapstructure:"per_minute"`
}

// HooksConfig holds standby pause/resume endpoints.
type HooksConfig struct {
	PauseURL    string        `mapstructure:"pause_url"`
	ResumeURL   string        `mapstructure:"resume_url"`
	AutoPause   bool          `mapstructure:"autopause"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// CalendarConfig holds calendar policy settings.
type CalendarConfig struct {
	Path     string        `mapstructure:"path"`
	Timezone string        `mapstructure:"timezone"`
	Markets  []string      `mapstructure:"markets"`
	Interval time.Duration `mapstructure:"interval"`
}

// legacyEnv maps config keys to environment names used by older deployments.
var legacyEnv = map[string][]string{
	"host.id":                 {"HOST_ID"},
	"host.kind":               {"HOST_KIND"},
	"ha.heartbeat_interval":   {"HEARTBEAT_SEC"},
	"ha.lease_ttl":            {"LEASE_TTL_SEC"},
	"intake.secret":           {"TRADINGVIEW_WEBHOOK_SECRET"},
	"commands.owner_id":       {"TELEGRAM_OWNER_ID"},
	"commands.webhook_secret": {"TELEGRAM_WEBHOOK_SECRET"},
	"hooks.pause_url":         {"RENDER_PAUSE_URL"},
	"hooks.resume_url":        {"RENDER_RESUME_URL"},
	"hooks.autopause":         {"RENDER_AUTOPAUSE"},
	"calendar.markets":        {"MARKETS"},
}

// cloudEnv are set by the cloud platform; any of them marks this host as cloud.
var cloudEnv = []string{"RENDER_SERVICE_ID", "RENDER", "RENDER_INSTANCE_ID"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", string(logging.FormatJSON))

	v.SetDefault("host.id", "")
	v.SetDefault("host.kind", "")

	v.SetDefault("ha.heartbeat_interval", ha.DefaultHeartbeatInterval)
	v.SetDefault("ha.lease_ttl", ha.DefaultLeaseTTL)
	v.SetDefault("ha.outage_multiplier", ha.DefaultOutageMultiplier)

	v.SetDefault("store.backend", StoreSQLite)
	v.SetDefault("store.sqlite_path", "./tradegate.db")
	v.SetDefault("store.state_path", "./tradegate-state")

	v.SetDefault("intake.secret", "")
	v.SetDefault("intake.hmac_required", true)
	v.SetDefault("intake.signature_headers", intake.DefaultSignatureHeaders)
	v.SetDefault("intake.dedup_backend", DedupPebble)
	v.SetDefault("intake.dedup_ttl", intake.DefaultDedupTTL)
	v.SetDefault("intake.rate_per_second", 5.0)
	v.SetDefault("intake.burst", 20)
	v.SetDefault("intake.max_body_bytes", 64<<10)
	v.SetDefault("intake.journal_retention", 7*24*time.Hour)
	v.SetDefault("intake.signature_failures_per_hour", 10)

	v.SetDefault("commands.owner_id", "")
	v.SetDefault("commands.webhook_secret", "")
	v.SetDefault("commands.per_minute", 20)

	v.SetDefault("hooks.pause_url", "")
	v.SetDefault("hooks.resume_url", "")
	v.SetDefault("hooks.autopause", true)
	v.SetDefault("hooks.timeout", hooks.DefaultTimeout)
	v.SetDefault("hooks.max_attempts", hooks.DefaultMaxAttempts)

	v.SetDefault("calendar.path", "")
	v.SetDefault("calendar.timezone", policy.DefaultTimezone)
	v.SetDefault("calendar.markets", policy.DefaultMarkets)
	v.SetDefault("calendar.interval", policy.DefaultWatchdogInterval)
}

// Load reads configuration from defaults, cfgFile, the environment and flags.
//
// Parameters:
//   - cfgFile: Optional YAML file; empty searches ./tradegate.yaml and /etc/tradegate/
//   - flags: Flag set populated by RegisterFlags (may be nil)
//
// Returns:
//   - Validated configuration, or an error describing the first problem
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("tradegate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tradegate")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envs := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, err
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := normalizeSeconds(v, "ha.heartbeat_interval", "ha.lease_ttl"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalizeSeconds treats bare integers (as set by HEARTBEAT_SEC and
// LEASE_TTL_SEC) as whole seconds.
func normalizeSeconds(v *viper.Viper, keys ...string) error {
	for _, key := range keys {
		switch raw := v.Get(key).(type) {
		case int:
			v.Set(key, time.Duration(raw)*time.Second)
		case string:
			raw = strings.TrimSpace(raw)
			if secs, err := strconv.Atoi(raw); err == nil {
				v.Set(key, time.Duration(secs)*time.Second)
				continue
			}
			if _, err := time.ParseDuration(raw); err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, raw, err)
			}
		}
	}
	return nil
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"listen":        "server.listen",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"host-id":       "host.id",
	"host-kind":     "host.kind",
	"store":         "store.backend",
	"db":            "store.sqlite_path",
	"state-dir":     "store.state_path",
	"calendar":      "calendar.path",
	"heartbeat":     "ha.heartbeat_interval",
	"lease-ttl":     "ha.lease_ttl",
	"cors-origins":  "server.cors_origins",
	"dedup-backend": "intake.dedup_backend",
	"hmac-required": "intake.hmac_required",
}

// RegisterFlags adds the server flags to fs. Unset flags never override
// values from the file or the environment.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("listen", "", "HTTP listen address (default :8080)")
	fs.String("log-level", "", "Log level: debug, info, warn, error")
	fs.String("log-format", "", "Log format: json or console")
	fs.String("host-id", "", "Stable host identifier (default hostname-random)")
	fs.String("host-kind", "", "Host kind: local or cloud (default autodetect)")
	fs.String("store", "", "Lease store backend: sqlite or memory")
	fs.String("db", "", "Path to the shared SQLite database")
	fs.String("state-dir", "", "Directory for local Pebble state")
	fs.String("calendar", "", "Path to the holiday and news calendar YAML")
	fs.Duration("heartbeat", 0, "Heartbeat interval (default 15s)")
	fs.Duration("lease-ttl", 0, "Lease ttl (default 45s, at least 3x heartbeat)")
	fs.StringSlice("cors-origins", nil, "Allowed CORS origins")
	fs.String("dedup-backend", "", "Dedup backend: pebble or memory")
	fs.Bool("hmac-required", true, "Reject signals without an HMAC signature header")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Finalize fills derived defaults and validates.
func (c *Config) Finalize() error {
	if c.Host.ID == "" {
		c.Host.ID = DefaultHostID()
		c.Host.Generated = true
	}

	kind, err := c.HostKind()
	if err != nil {
		return err
	}
	c.Host.Kind = string(kind)

	// The lease ttl must cover at least three missed heartbeats.
	if c.HA.HeartbeatInterval <= 0 {
		c.HA.HeartbeatInterval = ha.DefaultHeartbeatInterval
	}
	if floor := c.HA.HeartbeatInterval * ha.MinTTLMultiplier; c.HA.LeaseTTL < floor {
		c.HA.LeaseTTL = floor
	}

	return c.Validate()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Commands.OwnerID == "" {
		return fmt.Errorf("commands.owner_id is required (set %s_COMMANDS_OWNER_ID)", EnvPrefix)
	}
	if c.Commands.WebhookSecret == "" {
		return fmt.Errorf("commands.webhook_secret is required (set %s_COMMANDS_WEBHOOK_SECRET)", EnvPrefix)
	}

	if err := util.ValidateHostID(c.Host.ID); err != nil {
		return fmt.Errorf("host.id: %w", err)
	}
	if err := util.ValidateListenAddr(c.Server.Listen); err != nil {
		return fmt.Errorf("server.listen: %w", err)
	}
	if err := util.ValidateHookURL(c.Hooks.PauseURL); err != nil {
		return fmt.Errorf("hooks.pause_url: %w", err)
	}
	if err := util.ValidateHookURL(c.Hooks.ResumeURL); err != nil {
		return fmt.Errorf("hooks.resume_url: %w", err)
	}

	switch c.Store.Backend {
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store.backend %q: must be %s or %s", c.Store.Backend, StoreSQLite, StoreMemory)
	}

	switch c.Intake.DedupBackend {
	case DedupPebble:
		if c.Store.StatePath == "" {
			return fmt.Errorf("store.state_path is required for the pebble dedup backend")
		}
	case DedupMemory:
	default:
		return fmt.Errorf("unknown intake.dedup_backend %q: must be %s or %s", c.Intake.DedupBackend, DedupPebble, DedupMemory)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return err
	}

	if c.HA.OutageMultiplier < 1 {
		return fmt.Errorf("ha.outage_multiplier must be at least 1 (got %d)", c.HA.OutageMultiplier)
	}
	if c.Intake.RatePerSecond <= 0 || c.Intake.Burst <= 0 {
		return fmt.Errorf("intake.rate_per_second and intake.burst must be positive")
	}

	return nil
}

// HostKind returns the configured kind, autodetecting when unset.
func (c *Config) HostKind() (models.HostKind, error) {
	if c.Host.Kind != "" {
		return models.ParseHostKind(c.Host.Kind)
	}
	for _, name := range cloudEnv {
		if os.Getenv(name) != "" {
			return models.HostKindCloud, nil
		}
	}
	return models.HostKindLocal, nil
}

// HAManagerConfig returns the HA manager configuration.
func (c *Config) HAManagerConfig() *ha.Config {
	return &ha.Config{
		HostID:            c.Host.ID,
		HostKind:          models.HostKind(c.Host.Kind),
		HeartbeatInterval: c.HA.HeartbeatInterval,
		LeaseTTL:          c.HA.LeaseTTL,
		OutageMultiplier:  c.HA.OutageMultiplier,
	}
}

// HooksDispatcherConfig returns the hook dispatcher configuration.
func (c *Config) HooksDispatcherConfig() hooks.Config {
	cfg := hooks.DefaultConfig()
	cfg.PauseURL = c.Hooks.PauseURL
	cfg.ResumeURL = c.Hooks.ResumeURL
	cfg.AutoPause = c.Hooks.AutoPause
	cfg.Timeout = c.Hooks.Timeout
	cfg.MaxAttempts = c.Hooks.MaxAttempts
	return cfg
}

// VerifierConfig returns the signal verifier configuration.
func (c *Config) VerifierConfig() intake.VerifierConfig {
	return intake.VerifierConfig{
		Secret:       c.Intake.Secret,
		HMACRequired: c.Intake.HMACRequired,
		Headers:      c.Intake.SignatureHeaders,
	}
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = logging.Format(c.Log.Format)
	return cfg
}

// DefaultHostID returns <hostname[:12]>-<6 hex chars>.
func DefaultHostID() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "host"
	}
	if len(name) > 12 {
		name = name[:12]
	}
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return name + "-" + suffix
}
