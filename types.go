package portalauth

import (
	"context"
	"time"

	"github.com/MrEthical07/portalauth/session"
)

// Principal is the identity record the engine authenticates against.
//
// A principal with TwoFactorEnabled always carries a TwoFactorSecret.
type Principal struct {
	Identifier       string
	PasswordHash     string
	Role             string
	Admin            bool
	TwoFactorSecret  string
	TwoFactorEnabled bool
	Active           bool
	FirstName        string
	LastName         string
	Phone            string
}

// Profile returns the fields that may be shown to the principal.
func (p *Principal) Profile() Profile {
	return Profile{
		Identifier:       p.Identifier,
		Role:             p.Role,
		Admin:            p.Admin,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		Phone:            p.Phone,
		TwoFactorEnabled: p.TwoFactorEnabled,
	}
}

// Profile is the public view of a principal. It never carries secret material.
type Profile struct {
	Identifier       string `json:"identifier"`
	Role             string `json:"role"`
	Admin            bool   `json:"admin"`
	FirstName        string `json:"firstName,omitempty"`
	LastName         string `json:"lastName,omitempty"`
	Phone            string `json:"phone,omitempty"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
}

// PrincipalStore is the identity store. Lookups of unknown identifiers must
// return ErrPrincipalNotFound; any other error is treated as a backend
// failure and never as "principal missing".
type PrincipalStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*Principal, error)
	UpdatePasswordHash(ctx context.Context, identifier, passwordHash string) error
	SetTwoFactor(ctx context.Context, identifier, secret string, enabled bool) error
	SetActive(ctx context.Context, identifier string, active bool) error
}

// LoginState is a state of the login state machine.
type LoginState int

const (
	StateUnverified LoginState = iota
	StateCredentialsOK
	StateTwoFactorPending
	StateAuthenticated
)

func (s LoginState) String() string {
	switch s {
	case StateUnverified:
		return "unverified"
	case StateCredentialsOK:
		return "credentials_ok"
	case StateTwoFactorPending:
		return "two_factor_pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// LoginRequest is the first step of a login.
type LoginRequest struct {
	Identifier string
	Secret     string
	RememberMe bool
	// DeviceEntropy is optional client-provided input mixed into the device
	// fingerprint next to the user agent and client IP.
	DeviceEntropy string
}

// VerifyRequest completes a login parked in StateTwoFactorPending.
type VerifyRequest struct {
	PendingID   string
	Code        string
	TrustDevice bool
}

// LoginResult is the outcome of Login or VerifyTwoFactor. Exactly one of
// PendingID and Grant is set.
type LoginResult struct {
	State      LoginState
	PendingID  string
	Identifier string
	Grant      *Grant
}

// Grant is what a Finalizer produced for an authenticated principal.
type Grant struct {
	Profile    Profile
	RememberMe bool

	// Session transport.
	Session *session.Session

	// Token transport.
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time

	// RememberMeToken is the plaintext remember-me token when one was issued.
	RememberMeToken string
	// DeviceTrustToken is set when the device was trusted during this login.
	DeviceTrustToken string
}

// TwoFactorSetup is the enrollment material returned by BeginTwoFactorSetup.
// Nothing is persisted until EnableTwoFactor confirms a code.
type TwoFactorSetup struct {
	Secret        string
	ProvisionURI  string
	QRCodeDataURI string
}
