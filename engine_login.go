package portalauth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/portalauth/internal"
	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/MrEthical07/portalauth/internal/stores"
	"github.com/MrEthical07/portalauth/session"
)

// Finalizer turns an authenticated principal into transport state. The login
// state machine is shared; only finalization differs between transports.
type Finalizer interface {
	Finalize(ctx context.Context, principal *Principal, rememberMe bool) (*Grant, error)
}

// SessionFinalizer creates a server-side session. Any earlier session of the
// same principal is replaced atomically.
type SessionFinalizer struct {
	engine *Engine
}

// TokenFinalizer issues an access/refresh token pair and keeps no session.
type TokenFinalizer struct {
	engine *Engine
}

// SessionFinalizer returns the finalizer for the cookie/session transport.
func (e *Engine) SessionFinalizer() SessionFinalizer {
	return SessionFinalizer{engine: e}
}

// TokenFinalizer returns the finalizer for the bearer transport.
func (e *Engine) TokenFinalizer() TokenFinalizer {
	return TokenFinalizer{engine: e}
}

// Finalize implements Finalizer.
func (f SessionFinalizer) Finalize(ctx context.Context, p *Principal, rememberMe bool) (*Grant, error) {
	e := f.engine
	sess, err := e.createSession(ctx, p, rememberMe)
	if err != nil {
		return nil, err
	}

	token, err := e.persistRememberMe(ctx, p.Identifier, rememberMe)
	if err != nil {
		if derr := e.sessions.Delete(ctx, p.Identifier, sess.SessionID); derr != nil {
			e.warn(ctx, "session rollback failed", derr, slog.String("identifier", p.Identifier))
		}
		return nil, err
	}

	return &Grant{
		Profile:         p.Profile(),
		RememberMe:      rememberMe,
		Session:         sess,
		RememberMeToken: token,
	}, nil
}

// Finalize implements Finalizer.
func (f TokenFinalizer) Finalize(ctx context.Context, p *Principal, rememberMe bool) (*Grant, error) {
	e := f.engine
	pair, err := e.tokens.Issue(e.subjectFor(p), rememberMe)
	if err != nil {
		e.logger.ErrorContext(ctx, "token issuance failed", slog.Any("error", err))
		return nil, ErrInternal
	}

	token, err := e.persistRememberMe(ctx, p.Identifier, rememberMe)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricTokenIssued)

	return &Grant{
		Profile:          p.Profile(),
		RememberMe:       rememberMe,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		RememberMeToken:  token,
	}, nil
}

// Login runs the first step of the state machine.
//
// A principal without 2FA, or with 2FA on a trusted device, is finalized
// directly (StateAuthenticated). Otherwise the login is parked and the result
// carries only the pending id (StateTwoFactorPending); no session or token
// exists until VerifyTwoFactor succeeds.
//
// Unknown identifiers and wrong secrets both return ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, req LoginRequest, fin Finalizer) (*LoginResult, error) {
	if e == nil || e.hasher == nil || fin == nil {
		return nil, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)
	identifier := strings.TrimSpace(req.Identifier)

	if e.limiter != nil {
		if err := e.limiter.CheckLogin(ctx, identifier, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, identifier, "", ErrLoginRateLimited, nil)
				return nil, ErrLoginRateLimited
			}
			return nil, backendErr(err)
		}
	}

	// UNVERIFIED -> CREDENTIALS_OK
	p, err := e.verifyCredentials(ctx, identifier, req.Secret)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			e.recordLoginFailure(ctx, identifier, ip)
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, identifier, "", err, nil)
		}
		return nil, err
	}
	if !p.Active {
		e.metricInc(MetricLoginDeactivated)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.Identifier, "", ErrAccountDeactivated, nil)
		return nil, ErrAccountDeactivated
	}

	e.resetLoginThrottle(ctx, p.Identifier)
	e.maybeUpgradeHash(ctx, p, req.Secret)

	if !p.TwoFactorEnabled {
		return e.authenticate(ctx, p, req.RememberMe, fin, "password")
	}
	if p.TwoFactorSecret == "" {
		e.logger.ErrorContext(ctx, "two-factor enabled without secret", slog.String("identifier", p.Identifier))
		return nil, ErrInternal
	}

	fingerprint := internal.Fingerprint(userAgentFromContext(ctx), ip, req.DeviceEntropy)
	trusted, err := e.devices.IsTrusted(ctx, p.Identifier, fingerprint)
	if err != nil {
		// An unreadable trust record only costs the user a code prompt.
		e.warn(ctx, "device trust lookup failed", err, slog.String("identifier", p.Identifier))
		trusted = false
	}
	if trusted {
		e.metricInc(MetricDeviceTrustBypass)
		return e.authenticate(ctx, p, req.RememberMe, fin, "trusted_device")
	}

	// CREDENTIALS_OK -> TWO_FACTOR_PENDING
	pendingID, err := e.pending.Park(ctx, p.Identifier, req.RememberMe, fingerprint)
	if err != nil {
		return nil, backendErr(err)
	}
	e.metricInc(MetricTwoFactorRequired)
	e.emitAudit(ctx, auditEventTwoFactorRequired, true, p.Identifier, "", nil, nil)

	return &LoginResult{
		State:      StateTwoFactorPending,
		PendingID:  pendingID,
		Identifier: p.Identifier,
	}, nil
}

// VerifyTwoFactor completes a parked login. A wrong code leaves the pending
// entry resolvable (until MaxAttempts) without extending its lifetime. A
// correct code consumes the entry; of concurrent callers presenting the same
// pending id at most one is authenticated, the others get
// ErrPendingAuthNotFound. The remember-me intent captured at Login is used.
func (e *Engine) VerifyTwoFactor(ctx context.Context, req VerifyRequest, fin Finalizer) (*LoginResult, error) {
	if e == nil || e.pending == nil || fin == nil {
		return nil, ErrEngineNotReady
	}

	pa, err := e.pending.Resolve(ctx, req.PendingID)
	if err != nil {
		return nil, e.pendingError(ctx, err)
	}

	p, err := e.loadPrincipal(ctx, pa.Identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.discardPending(ctx, pa.ID)
			e.emitAudit(ctx, auditEventTwoFactorFailure, false, pa.Identifier, "", ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !p.Active {
		e.discardPending(ctx, pa.ID)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, p.Identifier, "", ErrAccountDeactivated, nil)
		return nil, ErrAccountDeactivated
	}

	if !e.totp.Validate(p.TwoFactorSecret, req.Code) {
		return nil, e.recordCodeFailure(ctx, pa)
	}

	// TWO_FACTOR_PENDING -> AUTHENTICATED: the DEL decides the single winner.
	consumed, err := e.pending.Consume(ctx, pa.ID)
	if err != nil {
		return nil, backendErr(err)
	}
	if !consumed {
		e.metricInc(MetricPendingAuthReplay)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, p.Identifier, "", ErrPendingAuthNotFound, func() map[string]string {
			return map[string]string{"reason": "replay"}
		})
		return nil, ErrPendingAuthNotFound
	}
	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, p.Identifier, "", nil, nil)

	result, err := e.authenticate(ctx, p, pa.RememberMe, fin, "totp")
	if err != nil {
		return nil, err
	}

	if req.TrustDevice {
		token, err := e.devices.Trust(ctx, p.Identifier, pa.Fingerprint)
		if err != nil {
			e.warn(ctx, "device trust failed", err, slog.String("identifier", p.Identifier))
		} else {
			result.Grant.DeviceTrustToken = token
			e.metricInc(MetricDeviceTrusted)
			e.emitAudit(ctx, auditEventDeviceTrusted, true, p.Identifier, "", nil, nil)
		}
	}

	return result, nil
}

func (e *Engine) authenticate(ctx context.Context, p *Principal, rememberMe bool, fin Finalizer, method string) (*LoginResult, error) {
	grant, err := fin.Finalize(ctx, p, rememberMe)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.Identifier, "", err, func() map[string]string {
			return map[string]string{"reason": "finalize"}
		})
		return nil, err
	}

	sessionID := ""
	if grant.Session != nil {
		sessionID = grant.Session.SessionID
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, p.Identifier, sessionID, nil, func() map[string]string {
		return map[string]string{
			"method":      method,
			"remember_me": strconv.FormatBool(rememberMe),
		}
	})

	return &LoginResult{
		State:      StateAuthenticated,
		Identifier: p.Identifier,
		Grant:      grant,
	}, nil
}

func (e *Engine) verifyCredentials(ctx context.Context, identifier, secret string) (*Principal, error) {
	if identifier == "" || secret == "" {
		return nil, ErrInvalidCredentials
	}

	p, err := e.loadPrincipal(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			_, _ = e.hasher.Verify(secret, e.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := e.hasher.Verify(secret, p.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	return p, nil
}

func (e *Engine) recordCodeFailure(ctx context.Context, pa *stores.PendingAuth) error {
	exceeded, err := e.pending.RecordFailure(ctx, pa.ID, e.config.PendingAuth.MaxAttempts)
	switch {
	case errors.Is(err, stores.ErrPendingAuthExpired):
		e.metricInc(MetricPendingAuthExpired)
		return ErrPendingAuthExpired
	case err != nil && !errors.Is(err, stores.ErrPendingAuthNotFound):
		e.warn(ctx, "pending auth failure counter not updated", err, slog.String("identifier", pa.Identifier))
	}

	if exceeded {
		e.metricInc(MetricTwoFactorAttemptsExceeded)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, pa.Identifier, "", ErrTwoFactorAttemptsExceeded, nil)
		return ErrTwoFactorAttemptsExceeded
	}

	e.metricInc(MetricTwoFactorFailure)
	e.emitAudit(ctx, auditEventTwoFactorFailure, false, pa.Identifier, "", ErrTwoFactorInvalid, nil)
	return ErrTwoFactorInvalid
}

func (e *Engine) pendingError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, stores.ErrPendingAuthExpired):
		e.metricInc(MetricPendingAuthExpired)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, "", "", ErrPendingAuthExpired, nil)
		return ErrPendingAuthExpired
	case errors.Is(err, stores.ErrPendingAuthNotFound):
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, "", "", ErrPendingAuthNotFound, nil)
		return ErrPendingAuthNotFound
	case errors.Is(err, stores.ErrPendingAuthBackend):
		return backendErr(err)
	default:
		e.logger.ErrorContext(ctx, "pending auth record unreadable", slog.Any("error", err))
		return ErrInternal
	}
}

func (e *Engine) discardPending(ctx context.Context, pendingID string) {
	if _, err := e.pending.Consume(ctx, pendingID); err != nil {
		e.warn(ctx, "pending auth discard failed", err)
	}
}

func (e *Engine) createSession(ctx context.Context, p *Principal, rememberMe bool) (*session.Session, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, ErrInternal
	}
	now := e.now()
	timeout := e.sessionTimeout(rememberMe)
	sess := &session.Session{
		SessionID:      sid.String(),
		Identifier:     p.Identifier,
		Role:           p.Role,
		Admin:          p.Admin,
		RememberMe:     rememberMe,
		TimeoutSeconds: int64(timeout / time.Second),
		CreatedAt:      now.Unix(),
		LastSeenAt:     now.Unix(),
	}

	replaced, err := e.sessions.Create(ctx, sess)
	if err != nil {
		return nil, backendErr(err)
	}
	if replaced != "" && replaced != sess.SessionID {
		e.metricInc(MetricSessionReplaced)
	}
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreated, true, p.Identifier, sess.SessionID, nil, func() map[string]string {
		md := map[string]string{"remember_me": strconv.FormatBool(rememberMe)}
		if replaced != "" {
			md["replaced_session_id"] = replaced
		}
		return md
	})
	return sess, nil
}

// persistRememberMe issues a fresh token when requested. A login without
// remember-me revokes any older token so it cannot resume a session later.
func (e *Engine) persistRememberMe(ctx context.Context, identifier string, rememberMe bool) (string, error) {
	if !rememberMe {
		if _, err := e.rememberMe.Revoke(ctx, identifier); err != nil {
			e.warn(ctx, "remember-me revoke failed", err, slog.String("identifier", identifier))
		}
		return "", nil
	}
	token, err := e.rememberMe.Issue(ctx, identifier, e.config.RememberMe.Days)
	if err != nil {
		return "", backendErr(err)
	}
	return token, nil
}

func (e *Engine) sessionTimeout(rememberMe bool) time.Duration {
	if rememberMe {
		return e.config.Session.RememberMeIdleTimeout
	}
	return e.config.Session.IdleTimeout
}

func (e *Engine) recordLoginFailure(ctx context.Context, identifier, ip string) {
	if e.limiter == nil {
		return
	}
	if err := e.limiter.RecordLoginFailure(ctx, identifier, ip); err != nil {
		e.warn(ctx, "login throttle update failed", err)
	}
}

func (e *Engine) resetLoginThrottle(ctx context.Context, identifier string) {
	if e.limiter == nil {
		return
	}
	if err := e.limiter.ResetLogin(ctx, identifier); err != nil {
		e.warn(ctx, "login throttle reset failed", err)
	}
}

func (e *Engine) maybeUpgradeHash(ctx context.Context, p *Principal, secret string) {
	if !e.config.Password.UpgradeOnLogin || !e.hasher.NeedsRehash(p.PasswordHash) {
		return
	}
	upgraded, err := e.hasher.Hash(secret)
	if err != nil {
		e.warn(ctx, "password rehash failed", err, slog.String("identifier", p.Identifier))
		return
	}
	if err := e.principals.UpdatePasswordHash(ctx, p.Identifier, upgraded); err != nil {
		e.warn(ctx, "password rehash not stored", err, slog.String("identifier", p.Identifier))
		return
	}
	p.PasswordHash = upgraded
	e.metricInc(MetricPasswordRehashed)
}
