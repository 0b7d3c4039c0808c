package portalauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/MrEthical07/portalauth/password"
)

// ChangePassword verifies oldSecret, stores an argon2id hash of newSecret and
// signs the principal out everywhere: the live session and the remember-me
// token are revoked.
func (e *Engine) ChangePassword(ctx context.Context, identifier, oldSecret, newSecret string) error {
	p, err := e.verifyCredentials(ctx, identifier, oldSecret)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			e.emitAudit(ctx, auditEventPasswordChanged, false, identifier, "", err, nil)
		}
		return err
	}
	if oldSecret == newSecret {
		return ErrPasswordPolicy
	}

	hash, err := e.hasher.Hash(newSecret)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return ErrInternal
	}
	if err := e.principals.UpdatePasswordHash(ctx, p.Identifier, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if _, err := e.sessions.DeleteForIdentifier(ctx, p.Identifier); err != nil {
		e.warn(ctx, "session revocation after password change failed", err, slog.String("identifier", p.Identifier))
	}
	e.revokeRememberMe(ctx, p.Identifier)

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChanged, true, p.Identifier, "", nil, nil)
	return nil
}

// DeactivatePrincipal marks the principal inactive and revokes its session,
// remember-me token and trusted devices. Requests still in flight are
// rejected by the gatekeeper on their next check.
func (e *Engine) DeactivatePrincipal(ctx context.Context, identifier string) error {
	if err := e.principals.SetActive(ctx, identifier, false); err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	sid, err := e.sessions.DeleteForIdentifier(ctx, identifier)
	if err != nil {
		e.warn(ctx, "session revocation after deactivation failed", err, slog.String("identifier", identifier))
	} else if sid != "" {
		e.metricInc(MetricSessionInvalidated)
	}
	e.revokeDeactivated(ctx, identifier)

	e.emitAudit(ctx, auditEventPrincipalDeactivated, true, identifier, sid, nil, nil)
	return nil
}

// RevokeTrustedDevices removes every trusted device of identifier and returns
// how many were removed.
func (e *Engine) RevokeTrustedDevices(ctx context.Context, identifier string) (int, error) {
	n, err := e.devices.RevokeAll(ctx, identifier)
	if err != nil {
		return 0, backendErr(err)
	}
	e.metricInc(MetricDeviceTrustRevoked)
	e.emitAudit(ctx, auditEventDeviceTrustRevoked, true, identifier, "", nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(n)}
	})
	return n, nil
}
