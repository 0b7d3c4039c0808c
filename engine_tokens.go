package portalauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/portalauth/jwt"
)

// TokenType is the embedded type of a valid token.
type TokenType = jwt.TokenType

const (
	TokenTypeAccess  = jwt.TypeAccess
	TokenTypeRefresh = jwt.TypeRefresh
)

// BearerPrincipal is the request-scoped identity established from an access token.
type BearerPrincipal struct {
	Principal *Principal
	Claims    *jwt.Claims
}

// TypeOf reports the type of a valid token. Invalid tokens return ErrTokenInvalid.
func (e *Engine) TypeOf(token string) (TokenType, error) {
	typ, err := e.tokens.TypeOf(token)
	if err != nil {
		return "", ErrTokenInvalid
	}
	return typ, nil
}

// AuthenticateBearer is the stateless gatekeeper check. It never touches
// session, cookie or remember-me state.
//
// Invalid and expired tokens return ErrTokenInvalid, refresh tokens return
// ErrTokenWrongType. A subject that no longer exists returns
// ErrSessionInvalidated; a deactivated one returns ErrAccountDeactivated.
func (e *Engine) AuthenticateBearer(ctx context.Context, token string) (*BearerPrincipal, error) {
	start := time.Now()
	defer e.observeLatency(start)

	if token == "" {
		e.metricInc(MetricBearerRejected)
		return nil, ErrTokenMissing
	}

	claims, err := e.tokens.ValidateAccess(token)
	if err != nil {
		mapped := mapTokenError(err)
		e.metricInc(MetricBearerRejected)
		e.emitAudit(ctx, auditEventBearerRejected, false, "", "", mapped, nil)
		return nil, mapped
	}

	p, err := e.loadPrincipal(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.metricInc(MetricBearerRejected)
			e.emitAudit(ctx, auditEventBearerRejected, false, claims.Subject, "", ErrSessionInvalidated, nil)
			return nil, ErrSessionInvalidated
		}
		return nil, err
	}
	if !p.Active {
		e.metricInc(MetricBearerRejected)
		e.emitAudit(ctx, auditEventBearerRejected, false, p.Identifier, "", ErrAccountDeactivated, nil)
		return nil, ErrAccountDeactivated
	}

	return &BearerPrincipal{Principal: p, Claims: claims}, nil
}

// RefreshTokens exchanges a refresh token for a new pair for the same subject,
// keeping its remember-me flag. An access token is rejected with
// ErrTokenWrongType.
//
// Unless Token.RevokeRotatedRefresh is set, the presented refresh token stays
// valid until it expires.
func (e *Engine) RefreshTokens(ctx context.Context, refreshToken string) (*Grant, error) {
	claims, err := e.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		mapped := mapTokenError(err)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", "", mapped, nil)
		return nil, mapped
	}

	if e.config.Token.RevokeRotatedRefresh {
		ttl := time.Until(claims.ExpiresAt.Time)
		first, err := e.refreshGuard.MarkUsed(ctx, claims.ID, ttl)
		if err != nil {
			return nil, backendErr(err)
		}
		if !first {
			e.metricInc(MetricRefreshReuseRejected)
			e.emitAudit(ctx, auditEventRefreshFailure, false, claims.Subject, "", ErrTokenInvalid, func() map[string]string {
				return map[string]string{"reason": "reuse"}
			})
			return nil, ErrTokenInvalid
		}
	}

	p, err := e.loadPrincipal(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrSessionInvalidated
		}
		return nil, err
	}
	if !p.Active {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, p.Identifier, "", ErrAccountDeactivated, nil)
		return nil, ErrAccountDeactivated
	}

	pair, err := e.tokens.Issue(e.subjectFor(p), claims.RememberMe)
	if err != nil {
		e.logger.ErrorContext(ctx, "token issuance failed", slog.Any("error", err))
		return nil, ErrInternal
	}
	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, p.Identifier, "", nil, nil)

	return &Grant{
		Profile:          p.Profile(),
		RememberMe:       claims.RememberMe,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

func mapTokenError(err error) error {
	if errors.Is(err, jwt.ErrWrongTokenType) {
		return ErrTokenWrongType
	}
	return ErrTokenInvalid
}
