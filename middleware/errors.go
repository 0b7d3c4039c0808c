package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/portalauth"
)

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, portalauth.ErrTwoFactorInvalid),
		errors.Is(err, portalauth.ErrTwoFactorNotEnabled),
		errors.Is(err, portalauth.ErrPasswordPolicy):
		return http.StatusBadRequest
	case errors.Is(err, portalauth.ErrTwoFactorAlreadyEnabled):
		return http.StatusConflict
	case errors.Is(err, portalauth.ErrInvalidCredentials),
		errors.Is(err, portalauth.ErrPendingAuthExpired),
		errors.Is(err, portalauth.ErrPendingAuthNotFound),
		errors.Is(err, portalauth.ErrTokenMissing),
		errors.Is(err, portalauth.ErrSessionInvalidated),
		errors.Is(err, portalauth.ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, portalauth.ErrTokenInvalid),
		errors.Is(err, portalauth.ErrTokenWrongType),
		errors.Is(err, portalauth.ErrAccountDeactivated):
		return http.StatusForbidden
	case errors.Is(err, portalauth.ErrLoginRateLimited),
		errors.Is(err, portalauth.ErrTwoFactorAttemptsExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// MessageFor returns the client-safe message for err. Internal failures never
// leak their detail.
func MessageFor(err error) string {
	switch StatusFor(err) {
	case http.StatusInternalServerError:
		return "internal error"
	case http.StatusUnauthorized:
		if errors.Is(err, portalauth.ErrPendingAuthExpired) || errors.Is(err, portalauth.ErrPendingAuthNotFound) {
			return portalauth.ErrPendingAuthExpired.Error()
		}
		if errors.Is(err, portalauth.ErrSessionInvalidated) {
			return portalauth.ErrSessionInvalidated.Error()
		}
		if errors.Is(err, portalauth.ErrInvalidCredentials) {
			return portalauth.ErrInvalidCredentials.Error()
		}
		return "unauthorized"
	default:
		return rootCause(err).Error()
	}
}

// rootCause strips wrapping so only the sentinel text reaches the client.
func rootCause(err error) error {
	for _, sentinel := range []error{
		portalauth.ErrTwoFactorInvalid,
		portalauth.ErrTwoFactorNotEnabled,
		portalauth.ErrTwoFactorAlreadyEnabled,
		portalauth.ErrPasswordPolicy,
		portalauth.ErrTokenInvalid,
		portalauth.ErrTokenWrongType,
		portalauth.ErrAccountDeactivated,
		portalauth.ErrLoginRateLimited,
		portalauth.ErrTwoFactorAttemptsExceeded,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return err
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes {"message": ...} with the status StatusFor assigns.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, StatusFor(err), map[string]string{"message": MessageFor(err)})
}
