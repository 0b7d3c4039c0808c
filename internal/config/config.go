package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/middleware"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PORTALAUTH_"

// EnvConfigFile names the optional TOML file.
const EnvConfigFile = EnvPrefix + "CONFIG"

// Config is the server configuration. Fields map to TOML keys and to
// PORTALAUTH_-prefixed environment variables; the environment wins.
type Config struct {
	Server    ServerConfig    `toml:"server" envPrefix:"SERVER_"`
	Log       LogConfig       `toml:"log" envPrefix:"LOG_"`
	Database  DatabaseConfig  `toml:"database" envPrefix:"DATABASE_"`
	Redis     RedisConfig     `toml:"redis" envPrefix:"REDIS_"`
	Auth      AuthConfig      `toml:"auth" envPrefix:"AUTH_"`
	RateLimit RateLimitConfig `toml:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

type ServerConfig struct {
	Addr            string        `toml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `toml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `toml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `toml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// TrustedProxies are the peer CIDRs allowed to name the client in
	// X-Forwarded-For or X-Real-IP. Empty trusts no peer.
	TrustedProxies  []string      `toml:"trusted_proxies" env:"TRUSTED_PROXIES" envSeparator:","`
}

// Proxies parses TrustedProxies.
func (s ServerConfig) Proxies() (*middleware.TrustedProxies, error) {
	proxies, err := middleware.ParseTrustedProxies(s.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("config: server %w", err)
	}
	return proxies, nil
}

type LogConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"` // "json" or "text"
}

type DatabaseConfig struct {
	URL            string `toml:"url" env:"URL"`
	MigrateOnStart bool   `toml:"migrate_on_start" env:"MIGRATE_ON_START"`
}

type RedisConfig struct {
	Addr     string `toml:"addr" env:"ADDR"`
	Password string `toml:"password" env:"PASSWORD"`
	DB       int    `toml:"db" env:"DB"`
}

// AuthConfig is the subset of portalauth.Config exposed to operators.
type AuthConfig struct {
	SigningMethod  string `toml:"signing_method" env:"SIGNING_METHOD"`
	HMACSecret     string `toml:"hmac_secret" env:"HMAC_SECRET"`
	PrivateKeyFile string `toml:"private_key_file" env:"PRIVATE_KEY_FILE"`
	PublicKeyFile  string `toml:"public_key_file" env:"PUBLIC_KEY_FILE"`
	Issuer         string `toml:"issuer" env:"ISSUER"`
	Audience       string `toml:"audience" env:"AUDIENCE"`

	AccessTTL            time.Duration `toml:"access_ttl" env:"ACCESS_TTL"`
	RememberMeAccessTTL  time.Duration `toml:"remember_me_access_ttl" env:"REMEMBER_ME_ACCESS_TTL"`
	RefreshTTL           time.Duration `toml:"refresh_ttl" env:"REFRESH_TTL"`
	RevokeRotatedRefresh bool          `toml:"revoke_rotated_refresh" env:"REVOKE_ROTATED_REFRESH"`

	SessionIdleTimeout time.Duration `toml:"session_idle_timeout" env:"SESSION_IDLE_TIMEOUT"`
	CookieSecure       bool          `toml:"cookie_secure" env:"COOKIE_SECURE"`
	CookieDomain       string        `toml:"cookie_domain" env:"COOKIE_DOMAIN"`

	TwoFactorIssuer    string        `toml:"two_factor_issuer" env:"TWO_FACTOR_ISSUER"`
	PendingTTL         time.Duration `toml:"pending_ttl" env:"PENDING_TTL"`
	PendingMaxAttempts int           `toml:"pending_max_attempts" env:"PENDING_MAX_ATTEMPTS"`
	DeviceTrustTTL     time.Duration `toml:"device_trust_ttl" env:"DEVICE_TRUST_TTL"`

	MaxLoginFailures int           `toml:"max_login_failures" env:"MAX_LOGIN_FAILURES"`
	LoginWindow      time.Duration `toml:"login_window" env:"LOGIN_WINDOW"`
	IPThrottle       bool          `toml:"ip_throttle" env:"IP_THROTTLE"`

	PublicPaths []string `toml:"public_paths" env:"PUBLIC_PATHS" envSeparator:","`

	// AuditSink is "none", "slog" or "json".
	AuditSink string `toml:"audit_sink" env:"AUDIT_SINK"`
	Metrics   bool   `toml:"metrics" env:"METRICS"`
}

// RateLimitConfig sizes the per-IP limiter in front of the login endpoints.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `toml:"burst" env:"BURST"`
}

// Default returns the configuration used when neither file nor environment
// sets a value.
func Default() Config {
	engine := portalauth.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			MigrateOnStart: true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Auth: AuthConfig{
			SigningMethod:       engine.Token.SigningMethod,
			Issuer:              engine.Token.Issuer,
			AccessTTL:           engine.Token.AccessTTL,
			RememberMeAccessTTL: engine.Token.RememberMeAccessTTL,
			RefreshTTL:          engine.Token.RefreshTTL,
			SessionIdleTimeout:  engine.Session.IdleTimeout,
			CookieSecure:        engine.Session.CookieSecure,
			TwoFactorIssuer:     engine.TwoFactor.Issuer,
			PendingTTL:          engine.PendingAuth.TTL,
			PendingMaxAttempts:  engine.PendingAuth.MaxAttempts,
			DeviceTrustTTL:      engine.DeviceTrust.Validity,
			MaxLoginFailures:    engine.Security.MaxLoginFailures,
			LoginWindow:         engine.Security.LoginWindow,
			PublicPaths:         append([]string(nil), portalauth.DefaultPublicPaths...),
			AuditSink:           "slog",
			Metrics:             true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
	}
}

// Load reads defaults, then the TOML file named by PORTALAUTH_CONFIG, then
// the process environment, and validates the result.
func Load() (*Config, error) {
	return load(os.Getenv(EnvConfigFile), nil)
}

// LoadFile is Load with an explicit file path and environment. A nil
// environ reads the process environment.
func LoadFile(path string, environ map[string]string) (*Config, error) {
	return load(path, environ)
}

func load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: unknown keys in %s: %v", path, undecoded)
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks server settings and the engine configuration derived from
// them. Key files are not read.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("config: server addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("config: server shutdown_timeout must be > 0")
	}
	if _, err := c.Server.Proxies(); err != nil {
		return err
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("config: log format %q must be json or text", c.Log.Format)
	}
	if c.Database.URL == "" {
		return errors.New("config: database url is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("config: redis addr is required")
	}
	switch c.Auth.AuditSink {
	case "none", "slog", "json":
	default:
		return fmt.Errorf("config: audit_sink %q must be none, slog or json", c.Auth.AuditSink)
	}
	switch c.Auth.SigningMethod {
	case "hs256":
		if len(c.Auth.HMACSecret) < 32 {
			return errors.New("config: hmac_secret must be at least 32 bytes")
		}
	case "ed25519":
		if c.Auth.PrivateKeyFile == "" {
			return errors.New("config: private_key_file is required for ed25519")
		}
	default:
		return fmt.Errorf("config: unsupported signing_method %q", c.Auth.SigningMethod)
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("config: rate_limit requests_per_second and burst must be > 0")
	}

	engine := c.engineConfig(placeholderKey)
	return engine.Validate()
}

var placeholderKey = []byte("validated-when-the-engine-is-built")

// Engine builds the portalauth configuration, reading key files for ed25519.
func (c *Config) Engine() (portalauth.Config, error) {
	if c.Auth.SigningMethod == "hs256" {
		return c.engineConfig([]byte(c.Auth.HMACSecret)), nil
	}

	priv, err := os.ReadFile(c.Auth.PrivateKeyFile)
	if err != nil {
		return portalauth.Config{}, fmt.Errorf("config: read private key: %w", err)
	}
	cfg := c.engineConfig(priv)
	if c.Auth.PublicKeyFile != "" {
		pub, err := os.ReadFile(c.Auth.PublicKeyFile)
		if err != nil {
			return portalauth.Config{}, fmt.Errorf("config: read public key: %w", err)
		}
		cfg.Token.PublicKey = pub
	}
	return cfg, nil
}

func (c *Config) engineConfig(privateKey []byte) portalauth.Config {
	cfg := portalauth.DefaultConfig()

	cfg.Token.SigningMethod = c.Auth.SigningMethod
	cfg.Token.PrivateKey = privateKey
	cfg.Token.Issuer = c.Auth.Issuer
	cfg.Token.Audience = c.Auth.Audience
	cfg.Token.AccessTTL = c.Auth.AccessTTL
	cfg.Token.RememberMeAccessTTL = c.Auth.RememberMeAccessTTL
	cfg.Token.RefreshTTL = c.Auth.RefreshTTL
	cfg.Token.RevokeRotatedRefresh = c.Auth.RevokeRotatedRefresh

	cfg.Session.IdleTimeout = c.Auth.SessionIdleTimeout
	cfg.Session.CookieSecure = c.Auth.CookieSecure
	cfg.Session.CookieDomain = c.Auth.CookieDomain

	cfg.TwoFactor.Issuer = c.Auth.TwoFactorIssuer
	cfg.PendingAuth.TTL = c.Auth.PendingTTL
	cfg.PendingAuth.MaxAttempts = c.Auth.PendingMaxAttempts
	cfg.DeviceTrust.Validity = c.Auth.DeviceTrustTTL

	cfg.Security.MaxLoginFailures = c.Auth.MaxLoginFailures
	cfg.Security.LoginWindow = c.Auth.LoginWindow
	cfg.Security.EnableIPThrottle = c.Auth.IPThrottle

	cfg.Gatekeeper.PublicPaths = append([]string(nil), c.Auth.PublicPaths...)
	cfg.Audit.Enabled = c.Auth.AuditSink != "none"
	cfg.Metrics.Enabled = c.Auth.Metrics
	cfg.Metrics.EnableLatencyHistograms = c.Auth.Metrics

	return cfg
}

// SlogLevel parses Level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Level))); err != nil {
		return 0, fmt.Errorf("config: log level %q: %w", c.Level, err)
	}
	return level, nil
}
