package portalauth

import (
	"context"
	"fmt"
	"log/slog"
)

// BeginTwoFactorSetup generates enrollment material for identifier. Nothing is
// stored; the secret only becomes active through EnableTwoFactor.
func (e *Engine) BeginTwoFactorSetup(ctx context.Context, identifier string) (*TwoFactorSetup, error) {
	p, err := e.loadPrincipal(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if p.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	setup, err := e.totp.GenerateSetup(p.Identifier, e.config.TwoFactor.Issuer)
	if err != nil {
		e.logger.ErrorContext(ctx, "totp setup failed", slog.Any("error", err))
		return nil, ErrInternal
	}
	return &TwoFactorSetup{
		Secret:        setup.Secret,
		ProvisionURI:  setup.ProvisionURI,
		QRCodeDataURI: setup.QRCodeDataURI,
	}, nil
}

// EnableTwoFactor persists secret once code proves the authenticator has it.
func (e *Engine) EnableTwoFactor(ctx context.Context, identifier, secret, code string) error {
	p, err := e.loadPrincipal(ctx, identifier)
	if err != nil {
		return err
	}
	if p.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}
	if !e.totp.Validate(secret, code) {
		e.emitAudit(ctx, auditEventTwoFactorEnabled, false, p.Identifier, "", ErrTwoFactorInvalid, nil)
		return ErrTwoFactorInvalid
	}

	if err := e.principals.SetTwoFactor(ctx, p.Identifier, secret, true); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	e.metricInc(MetricTwoFactorEnabled)
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, p.Identifier, "", nil, nil)
	return nil
}

// DisableTwoFactor clears the secret after a valid code and revokes every
// trusted device, so re-enabling starts from a clean slate.
func (e *Engine) DisableTwoFactor(ctx context.Context, identifier, code string) error {
	p, err := e.loadPrincipal(ctx, identifier)
	if err != nil {
		return err
	}
	if !p.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	if !e.totp.Validate(p.TwoFactorSecret, code) {
		e.emitAudit(ctx, auditEventTwoFactorDisabled, false, p.Identifier, "", ErrTwoFactorInvalid, nil)
		return ErrTwoFactorInvalid
	}

	if err := e.principals.SetTwoFactor(ctx, p.Identifier, "", false); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if _, err := e.RevokeTrustedDevices(ctx, p.Identifier); err != nil {
		e.warn(ctx, "device trust revocation failed", err, slog.String("identifier", p.Identifier))
	}
	e.metricInc(MetricTwoFactorDisabled)
	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, p.Identifier, "", nil, nil)
	return nil
}
