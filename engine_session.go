package portalauth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrEthical07/portalauth/session"
)

// RevalidateSession is the stateful gatekeeper check. It re-reads the
// principal bound to sessionID on every call:
//
//   - principal gone: the session is invalidated, ErrSessionInvalidated.
//   - principal deactivated: the session, remember-me token and every trusted
//     device are revoked, ErrAccountDeactivated.
//   - otherwise the session's inactivity window is renewed.
//
// An unknown or idle-expired session returns ErrSessionNotFound. Backend
// failures never invalidate anything.
func (e *Engine) RevalidateSession(ctx context.Context, sessionID string) (*Principal, *session.Session, error) {
	start := time.Now()
	defer e.observeLatency(start)

	if sessionID == "" {
		return nil, nil, ErrSessionNotFound
	}
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		if errors.Is(err, session.ErrRedisUnavailable) {
			return nil, nil, backendErr(err)
		}
		// Undecodable record: drop it rather than serve it.
		e.warn(ctx, "session record unreadable", err)
		_ = e.sessions.Delete(ctx, "", sessionID)
		return nil, nil, ErrSessionNotFound
	}

	p, err := e.loadPrincipal(ctx, sess.Identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.invalidate(ctx, sess, "principal_missing")
			e.metricInc(MetricSessionRejected)
			return nil, nil, ErrSessionInvalidated
		}
		return nil, nil, err
	}
	if !p.Active {
		e.invalidate(ctx, sess, "principal_deactivated")
		e.revokeDeactivated(ctx, p.Identifier)
		e.metricInc(MetricSessionRejected)
		return nil, nil, ErrAccountDeactivated
	}

	if err := e.sessions.Touch(ctx, sess, e.touchTimeout(ctx, sess)); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			// Replaced or logged out between Get and Touch.
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, backendErr(err)
	}

	return p, sess, nil
}

// touchTimeout keeps the long window only while the remember-me token still
// exists, so revoking it shortens a live session on its next request.
func (e *Engine) touchTimeout(ctx context.Context, sess *session.Session) time.Duration {
	if !sess.RememberMe {
		return e.config.Session.IdleTimeout
	}
	ok, err := e.rememberMe.Exists(ctx, sess.Identifier)
	if err != nil {
		e.warn(ctx, "remember-me lookup failed", err, slog.String("identifier", sess.Identifier))
		return e.config.Session.IdleTimeout
	}
	if !ok {
		sess.RememberMe = false
		return e.config.Session.IdleTimeout
	}
	return e.config.Session.RememberMeIdleTimeout
}

// ResumeSession creates a new session from a remember-me cookie when no live
// session exists and returns the principal it was created for. The
// remember-me token is rotated. A revoked or mismatched token returns
// ErrSessionNotFound.
func (e *Engine) ResumeSession(ctx context.Context, identifier, token string) (*Principal, *Grant, error) {
	ok, err := e.rememberMe.Verify(ctx, identifier, token)
	if err != nil {
		return nil, nil, backendErr(err)
	}
	if !ok {
		return nil, nil, ErrSessionNotFound
	}

	p, err := e.loadPrincipal(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.revokeRememberMe(ctx, identifier)
			return nil, nil, ErrSessionInvalidated
		}
		return nil, nil, err
	}
	if !p.Active {
		if _, err := e.sessions.DeleteForIdentifier(ctx, p.Identifier); err != nil {
			e.warn(ctx, "session delete failed", err, slog.String("identifier", p.Identifier))
		}
		e.revokeDeactivated(ctx, p.Identifier)
		return nil, nil, ErrAccountDeactivated
	}

	grant, err := e.SessionFinalizer().Finalize(ctx, p, true)
	if err != nil {
		return nil, nil, err
	}
	e.metricInc(MetricSessionResumed)
	e.emitAudit(ctx, auditEventSessionResumed, true, p.Identifier, grant.Session.SessionID, nil, nil)
	return p, grant, nil
}

// InvalidateSession destroys sess and revokes the principal's remember-me
// token so "stay logged in" cannot bring the session back. Cookies are the
// transport's job.
func (e *Engine) InvalidateSession(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return nil
	}
	if err := e.sessions.Delete(ctx, sess.Identifier, sess.SessionID); err != nil {
		return backendErr(err)
	}
	e.revokeRememberMe(ctx, sess.Identifier)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSessionInvalidated, true, sess.Identifier, sess.SessionID, nil, nil)
	return nil
}

// Logout invalidates the session if it still exists. Unknown ids are not an error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrRedisUnavailable) {
			return backendErr(err)
		}
		return nil
	}
	if err := e.InvalidateSession(ctx, sess); err != nil {
		return err
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, sess.Identifier, sess.SessionID, nil, nil)
	return nil
}

// ForgetRememberMe revokes identifier's remember-me token if token is the
// current one. Logout uses it when only the remember-me cookie is left.
func (e *Engine) ForgetRememberMe(ctx context.Context, identifier, token string) error {
	ok, err := e.rememberMe.Verify(ctx, identifier, token)
	if err != nil {
		return backendErr(err)
	}
	if ok {
		e.revokeRememberMe(ctx, identifier)
	}
	return nil
}

func (e *Engine) invalidate(ctx context.Context, sess *session.Session, reason string) {
	if err := e.sessions.Delete(ctx, sess.Identifier, sess.SessionID); err != nil {
		e.warn(ctx, "session invalidation failed", err, slog.String("session_id", sess.SessionID))
	}
	e.revokeRememberMe(ctx, sess.Identifier)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSessionInvalidated, true, sess.Identifier, sess.SessionID, nil, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}

// revokeDeactivated removes everything that could re-authenticate a
// deactivated principal without a password.
func (e *Engine) revokeDeactivated(ctx context.Context, identifier string) {
	e.revokeRememberMe(ctx, identifier)
	n, err := e.devices.RevokeAll(ctx, identifier)
	if err != nil {
		e.warn(ctx, "device trust revocation failed", err, slog.String("identifier", identifier))
	}
	e.metricInc(MetricDeactivationRevoked)
	e.emitAudit(ctx, auditEventDeactivationRevocation, err == nil, identifier, "", err, func() map[string]string {
		return map[string]string{"trusted_devices": strconv.Itoa(n)}
	})
}

func (e *Engine) revokeRememberMe(ctx context.Context, identifier string) {
	if _, err := e.rememberMe.Revoke(ctx, identifier); err != nil {
		e.warn(ctx, "remember-me revoke failed", err, slog.String("identifier", identifier))
	}
}
