package portalauth

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown identifier and a wrong
	// secret alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTwoFactorInvalid is returned for a wrong or malformed one-time code.
	ErrTwoFactorInvalid = errors.New("invalid or expired code")
	// ErrTwoFactorAttemptsExceeded is returned when a pending login used up its code attempts.
	ErrTwoFactorAttemptsExceeded = errors.New("too many invalid codes")
	// ErrTwoFactorNotEnabled is returned when disabling two-factor on a principal without it.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")
	// ErrTwoFactorAlreadyEnabled is returned when enrolling a principal that already has two-factor.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	// ErrPendingAuthExpired is returned when a pending login outlived its TTL.
	ErrPendingAuthExpired = errors.New("session expired, log in again")
	// ErrPendingAuthNotFound is returned for unknown or already consumed pending ids.
	ErrPendingAuthNotFound = errors.New("pending login not found")
	// ErrTokenMissing is returned when no bearer token was presented.
	ErrTokenMissing = errors.New("token missing")
	// ErrTokenInvalid covers bad signatures, expired and malformed tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenWrongType is returned when an access token is used as a refresh token or the reverse.
	ErrTokenWrongType = errors.New("token has wrong type")
	// ErrSessionNotFound is returned for unknown, expired and revoked sessions or remember-me tokens.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionInvalidated is returned when the principal behind a session vanished.
	ErrSessionInvalidated = errors.New("session invalid, log in again")
	// ErrAccountDeactivated is returned when the principal exists but is no longer active.
	ErrAccountDeactivated = errors.New("account deactivated")
	// ErrLoginRateLimited is returned while the failed-login throttle is tripped.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrPrincipalNotFound must be returned by a PrincipalStore for unknown identifiers.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrPasswordPolicy rejects a new password that is too short, too long or unchanged.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrBackendUnavailable wraps Redis and identity store failures.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	// ErrEngineNotReady is returned by a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInternal is the catch-all for unexpected failures in verification or token logic.
	ErrInternal = errors.New("internal error")
)
