package portalauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/portalauth/internal/audit"
	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/MrEthical07/portalauth/internal/stores"
	"github.com/MrEthical07/portalauth/jwt"
	"github.com/MrEthical07/portalauth/password"
	"github.com/MrEthical07/portalauth/session"
	"github.com/MrEthical07/portalauth/totp"
)

// Engine runs the login state machine and the per-request checks. It is safe
// for concurrent use; all mutable state lives in Redis or the PrincipalStore.
type Engine struct {
	config       Config
	logger       *slog.Logger
	principals   PrincipalStore
	sessions     *session.Store
	pending      *stores.PendingAuthStore
	devices      *stores.TrustedDeviceStore
	rememberMe   *stores.RememberMeStore
	refreshGuard *stores.RefreshGuard
	limiter      *rate.Limiter
	audit        *audit.Dispatcher
	metrics      *Metrics
	hasher       *password.Hasher
	dummyHash    string
	tokens       *jwt.Manager
	totp         *totp.Manager
	now          func() time.Time
}

// Close flushes queued audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current engine counters for the exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks Redis reachability.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if _, err := e.sessions.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeLatency(start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricGatekeeperLatency, time.Since(start))
	}
}

func (e *Engine) warn(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.Any("error", err))
	e.logger.LogAttrs(ctx, slog.LevelWarn, msg, attrs...)
}

// loadPrincipal maps store failures onto the root taxonomy. Only
// ErrPrincipalNotFound means the principal is gone.
func (e *Engine) loadPrincipal(ctx context.Context, identifier string) (*Principal, error) {
	p, err := e.principals.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if p == nil {
		return nil, ErrPrincipalNotFound
	}
	return p, nil
}

// backendErr wraps store errors so callers can match ErrBackendUnavailable.
func backendErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

func (e *Engine) subjectFor(p *Principal) jwt.Subject {
	return jwt.Subject{
		Identifier: p.Identifier,
		Role:       p.Role,
		Admin:      p.Admin,
		Email:      p.Identifier,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Phone:      p.Phone,
	}
}
