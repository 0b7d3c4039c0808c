package portalauth

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Config defines every tunable of the Engine. Use DefaultConfig and override
// fields; zero values are not defaults.
type Config struct {
	Token       TokenConfig
	Session     SessionConfig
	TwoFactor   TwoFactorConfig
	PendingAuth PendingAuthConfig
	DeviceTrust DeviceTrustConfig
	RememberMe  RememberMeConfig
	Password    PasswordConfig
	Security    SecurityConfig
	Gatekeeper  GatekeeperConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls access/refresh token issuance.
type TokenConfig struct {
	AccessTTL           time.Duration
	RememberMeAccessTTL time.Duration
	RefreshTTL          time.Duration
	SigningMethod       string // "ed25519" (default) or "hs256"
	PrivateKey          []byte
	PublicKey           []byte
	Issuer              string
	Audience            string
	Leeway              time.Duration
	KeyID               string

	// RevokeRotatedRefresh records the id of every refresh token that was
	// exchanged and rejects it afterwards. Off by default: a rotated refresh
	// token then stays usable until it expires.
	RevokeRotatedRefresh bool
	RefreshGuardPrefix   string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines the stateful transport.
type SessionConfig struct {
	RedisPrefix           string
	IdleTimeout           time.Duration
	RememberMeIdleTimeout time.Duration

	CookieName           string
	RememberMeCookieName string
	CookiePath           string
	CookieDomain         string
	CookieSecure         bool
	CookieSameSite       http.SameSite
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig defines TOTP parameters.
type TwoFactorConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	Skew      int
	QRSize    int
}

// PendingAuthConfig bounds logins parked between password and code.
type PendingAuthConfig struct {
	RedisPrefix string
	TTL         time.Duration
	MaxAttempts int
}

// DeviceTrustConfig defines how long a trusted device skips the code.
type DeviceTrustConfig struct {
	RedisPrefix string
	Validity    time.Duration
}

// RememberMeConfig defines the long-lived login token.
type RememberMeConfig struct {
	RedisPrefix string
	Days        int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters.
type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	UpgradeOnLogin   bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls the failed-login throttle.
type SecurityConfig struct {
	EnableLoginThrottle bool
	EnableIPThrottle    bool
	MaxLoginFailures    int
	LoginWindow         time.Duration
}

// GatekeeperConfig lists paths that bypass both request filters. A trailing
// "/*" matches the prefix. OPTIONS requests always bypass.
type GatekeeperConfig struct {
	PublicPaths []string
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultPublicPaths are the endpoints that bypass the gatekeeper.
var DefaultPublicPaths = []string{
	"/login",
	"/login/verify-2fa",
	"/logout",
	"/auth/check",
	"/auth/login",
	"/auth/verify-2fa",
	"/auth/refresh-token",
	"/auth/password-recovery/*",
	"/register",
	"/healthz",
	"/metrics",
}

// DefaultConfig returns a complete configuration. Token keys must still be set.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:           24 * time.Hour,
			RememberMeAccessTTL: 7 * 24 * time.Hour,
			RefreshTTL:          30 * 24 * time.Hour,
			SigningMethod:       "ed25519",
			Issuer:              "portalauth",
			Leeway:              30 * time.Second,
			RefreshGuardPrefix:  "prr",
		},
		Session: SessionConfig{
			RedisPrefix:           "ps",
			IdleTimeout:           30 * time.Minute,
			RememberMeIdleTimeout: 7 * 24 * time.Hour,
			CookieName:            "PORTAL_SESSION",
			RememberMeCookieName:  "PORTAL_REMEMBER_ME",
			CookiePath:            "/",
			CookieSecure:          true,
			CookieSameSite:        http.SameSiteLaxMode,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:    "Service Portal",
			Digits:    6,
			Period:    30,
			Algorithm: "SHA1",
			Skew:      1,
			QRSize:    256,
		},
		PendingAuth: PendingAuthConfig{
			RedisPrefix: "ppa",
			TTL:         5 * time.Minute,
			MaxAttempts: 5,
		},
		DeviceTrust: DeviceTrustConfig{
			RedisPrefix: "ptd",
			Validity:    30 * 24 * time.Hour,
		},
		RememberMe: RememberMeConfig{
			RedisPrefix: "prm",
			Days:        7,
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
			UpgradeOnLogin:   true,
		},
		Security: SecurityConfig{
			EnableLoginThrottle: true,
			EnableIPThrottle:    false,
			MaxLoginFailures:    10,
			LoginWindow:         15 * time.Minute,
		},
		Gatekeeper: GatekeeperConfig{
			PublicPaths: append([]string(nil), DefaultPublicPaths...),
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	out.Gatekeeper.PublicPaths = append([]string(nil), cfg.Gatekeeper.PublicPaths...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks internal consistency. It does not parse key material;
// the token manager does that at Build.
func (c *Config) Validate() error {
	// Token
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RememberMeAccessTTL < c.Token.AccessTTL {
		return errors.New("Token RememberMeAccessTTL must be >= AccessTTL")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.SigningMethod != "ed25519" && c.Token.SigningMethod != "hs256" {
		return errors.New("unsupported token signing method")
	}
	if len(c.Token.PrivateKey) == 0 {
		return errors.New("Token PrivateKey is required")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 5*time.Minute {
		return errors.New("Token Leeway must be between 0 and 5m")
	}

	// Session
	if c.Session.IdleTimeout < time.Second {
		return errors.New("Session IdleTimeout must be >= 1s")
	}
	if c.Session.RememberMeIdleTimeout < c.Session.IdleTimeout {
		return errors.New("Session RememberMeIdleTimeout must be >= IdleTimeout")
	}
	if c.Session.CookieName == "" || c.Session.RememberMeCookieName == "" {
		return errors.New("Session cookie names must be set")
	}
	if c.Session.CookieName == c.Session.RememberMeCookieName {
		return errors.New("Session cookie names must differ")
	}

	// Two-factor
	if c.TwoFactor.Issuer == "" {
		return errors.New("TwoFactor Issuer must be set")
	}
	if c.TwoFactor.Digits != 6 && c.TwoFactor.Digits != 8 {
		return errors.New("TwoFactor Digits must be 6 or 8")
	}
	if c.TwoFactor.Period <= 0 {
		return errors.New("TwoFactor Period must be > 0")
	}
	if c.TwoFactor.Skew < 0 || c.TwoFactor.Skew > 10 {
		return errors.New("TwoFactor Skew must be between 0 and 10")
	}

	if c.PendingAuth.TTL <= 0 {
		return errors.New("PendingAuth TTL must be > 0")
	}
	if c.PendingAuth.MaxAttempts <= 0 {
		return errors.New("PendingAuth MaxAttempts must be > 0")
	}
	if c.DeviceTrust.Validity <= 0 {
		return errors.New("DeviceTrust Validity must be > 0")
	}
	if c.RememberMe.Days <= 0 || c.RememberMe.Days > 365 {
		return errors.New("RememberMe Days must be between 1 and 365")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginFailures <= 0 {
			return errors.New("Security MaxLoginFailures must be > 0")
		}
		if c.Security.LoginWindow <= 0 {
			return errors.New("Security LoginWindow must be > 0")
		}
	}

	for _, p := range c.Gatekeeper.PublicPaths {
		if !strings.HasPrefix(p, "/") {
			return errors.New("Gatekeeper PublicPaths entries must start with '/'")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
