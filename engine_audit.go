package portalauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/portalauth/internal/audit"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventLoginRateLimited       = "login_rate_limited"
	auditEventTwoFactorRequired      = "two_factor_required"
	auditEventTwoFactorSuccess       = "two_factor_success"
	auditEventTwoFactorFailure       = "two_factor_failure"
	auditEventDeviceTrusted          = "device_trusted"
	auditEventDeviceTrustRevoked     = "device_trust_revoked"
	auditEventSessionCreated         = "session_created"
	auditEventSessionResumed         = "session_resumed"
	auditEventSessionInvalidated     = "session_invalidated"
	auditEventDeactivationRevocation = "deactivation_revocation"
	auditEventLogout                 = "logout"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshFailure         = "refresh_failure"
	auditEventBearerRejected         = "bearer_rejected"
	auditEventPasswordChanged        = "password_changed"
	auditEventTwoFactorEnabled       = "two_factor_enabled"
	auditEventTwoFactorDisabled      = "two_factor_disabled"
	auditEventPrincipalDeactivated   = "principal_deactivated"
)

// AuditErrorCode is the stable, client-safe error label stored on events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrTwoFactorInvalid   AuditErrorCode = "two_factor_invalid"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrPendingExpired     AuditErrorCode = "pending_expired"
	auditErrPendingNotFound    AuditErrorCode = "pending_not_found"
	auditErrTokenInvalid       AuditErrorCode = "token_invalid"
	auditErrTokenWrongType     AuditErrorCode = "token_wrong_type"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrSessionInvalidated AuditErrorCode = "session_invalidated"
	auditErrAccountDeactivated AuditErrorCode = "account_deactivated"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identifier string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp:  e.now().UTC(),
		EventType:  eventType,
		Identifier: identifier,
		SessionID:  sessionID,
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTwoFactorInvalid),
		errors.Is(err, ErrTwoFactorNotEnabled),
		errors.Is(err, ErrTwoFactorAlreadyEnabled):
		return auditErrTwoFactorInvalid
	case errors.Is(err, ErrTwoFactorAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrPendingAuthExpired):
		return auditErrPendingExpired
	case errors.Is(err, ErrPendingAuthNotFound):
		return auditErrPendingNotFound
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenMissing):
		return auditErrTokenInvalid
	case errors.Is(err, ErrTokenWrongType):
		return auditErrTokenWrongType
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionInvalidated),
		errors.Is(err, ErrPrincipalNotFound):
		return auditErrSessionInvalidated
	case errors.Is(err, ErrAccountDeactivated):
		return auditErrAccountDeactivated
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
