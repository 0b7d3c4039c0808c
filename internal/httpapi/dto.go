package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/portalauth"
)

const maxBodyBytes = 1 << 16

var errBadRequest = errors.New("malformed request body")

type loginRequest struct {
	Identifier    string `json:"identifier"`
	Secret        string `json:"secret"`
	RememberMe    bool   `json:"rememberMe"`
	DeviceEntropy string `json:"deviceEntropy,omitempty"`
}

type verifyRequest struct {
	PendingID       string `json:"pendingId"`
	Code            string `json:"code"`
	TrustThisDevice bool   `json:"trustThisDevice"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type enableTwoFactorRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type changePasswordRequest struct {
	OldSecret string `json:"oldSecret"`
	NewSecret string `json:"newSecret"`
}

type loginResponse struct {
	RequiresTwoFactor bool                `json:"requiresTwoFactor"`
	User              *portalauth.Profile `json:"user,omitempty"`
	PendingID         string              `json:"pendingId,omitempty"`
	Identifier        string              `json:"identifier,omitempty"`
	AccessToken       string              `json:"accessToken,omitempty"`
	RefreshToken      string              `json:"refreshToken,omitempty"`
}

type userResponse struct {
	User         portalauth.Profile `json:"user"`
	AccessToken  string             `json:"accessToken,omitempty"`
	RefreshToken string             `json:"refreshToken,omitempty"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type checkResponse struct {
	Authenticated bool               `json:"authenticated"`
	User          portalauth.Profile `json:"user"`
}

type twoFactorSetupResponse struct {
	Secret     string `json:"secret"`
	OtpauthURL string `json:"otpauthUrl"`
	QRCode     string `json:"qrCode"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// decode reads one JSON object. Unknown fields are rejected.
func decode(r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return errBadRequest
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errBadRequest
	}
	if dec.More() {
		return errBadRequest
	}
	return nil
}
