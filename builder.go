package portalauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/portalauth/internal/audit"
	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/MrEthical07/portalauth/internal/stores"
	"github.com/MrEthical07/portalauth/jwt"
	"github.com/MrEthical07/portalauth/password"
	"github.com/MrEthical07/portalauth/session"
	"github.com/MrEthical07/portalauth/totp"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder can build exactly once.
type Builder struct {
	config     Config
	redis      redis.UniversalClient
	principals PrincipalStore
	logger     *slog.Logger
	auditSink  AuditSink

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions, pending logins, device trust,
// remember-me tokens and the login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPrincipalStore sets the identity store.
func (b *Builder) WithPrincipalStore(store PrincipalStore) *Builder {
	b.principals = store
	return b
}

// WithLogger sets the logger for best-effort failures. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink enables auditing into sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled switches the in-process counters on or off.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms also records gatekeeper latency. It has no effect
// while metrics are disabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.principals == nil {
		return nil, errors.New("principal store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- CRYPTO --------
	hasher, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	// Unknown identifiers are verified against this hash so both failure
	// paths cost one argon2 evaluation.
	dummyHash, err := hasher.Hash("portalauth-unknown-principal")
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:           cfg.Token.AccessTTL,
		RememberMeAccessTTL: cfg.Token.RememberMeAccessTTL,
		RefreshTTL:          cfg.Token.RefreshTTL,
		SigningMethod:       jwt.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:          cloneBytes(cfg.Token.PrivateKey),
		PublicKey:           cloneBytes(cfg.Token.PublicKey),
		Issuer:              cfg.Token.Issuer,
		Audience:            cfg.Token.Audience,
		Leeway:              cfg.Token.Leeway,
		MaxFutureIAT:        time.Minute,
		KeyID:               cfg.Token.KeyID,
	})
	if err != nil {
		return nil, err
	}

	otp, err := totp.NewManager(totp.Config{
		Digits:    cfg.TwoFactor.Digits,
		Period:    cfg.TwoFactor.Period,
		Algorithm: cfg.TwoFactor.Algorithm,
		Skew:      cfg.TwoFactor.Skew,
		QRSize:    cfg.TwoFactor.QRSize,
	})
	if err != nil {
		return nil, err
	}

	// -------- STORES --------
	engine := &Engine{
		config:       cfg,
		logger:       logger,
		principals:   b.principals,
		sessions:     session.NewStore(b.redis, cfg.Session.RedisPrefix),
		pending:      stores.NewPendingAuthStore(b.redis, cfg.PendingAuth.RedisPrefix, cfg.PendingAuth.TTL),
		devices:      stores.NewTrustedDeviceStore(b.redis, cfg.DeviceTrust.RedisPrefix, cfg.DeviceTrust.Validity),
		rememberMe:   stores.NewRememberMeStore(b.redis, cfg.RememberMe.RedisPrefix),
		refreshGuard: stores.NewRefreshGuard(b.redis, cfg.Token.RefreshGuardPrefix),
		hasher:       hasher,
		dummyHash:    dummyHash,
		tokens:       tokens,
		totp:         otp,
		metrics:      NewMetrics(cfg.Metrics),
		now:          time.Now,
	}

	if cfg.Security.EnableLoginThrottle {
		engine.limiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
			MaxLoginFailures: cfg.Security.MaxLoginFailures,
			LoginWindow:      cfg.Security.LoginWindow,
		})
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
