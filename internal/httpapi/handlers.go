package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/middleware"
)

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBadRequest) {
		middleware.WriteJSON(w, http.StatusBadRequest, messageResponse{Message: err.Error()})
		return
	}
	if middleware.StatusFor(err) == http.StatusInternalServerError {
		middleware.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "request failed", slog.Any("error", err))
	}
	middleware.WriteError(w, err)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request, fin portalauth.Finalizer) (*portalauth.LoginResult, bool) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	res, err := h.engine.Login(r.Context(), portalauth.LoginRequest{
		Identifier:    req.Identifier,
		Secret:        req.Secret,
		RememberMe:    req.RememberMe,
		DeviceEntropy: req.DeviceEntropy,
	}, fin)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	if res.State == portalauth.StateTwoFactorPending {
		middleware.WriteJSON(w, http.StatusOK, loginResponse{
			RequiresTwoFactor: true,
			PendingID:         res.PendingID,
			Identifier:        res.Identifier,
		})
		return nil, false
	}
	return res, true
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request, fin portalauth.Finalizer) (*portalauth.LoginResult, bool) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	res, err := h.engine.VerifyTwoFactor(r.Context(), portalauth.VerifyRequest{
		PendingID:   req.PendingID,
		Code:        req.Code,
		TrustDevice: req.TrustThisDevice,
	}, fin)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return res, true
}

// POST /login
func (h *handler) sessionLogin(w http.ResponseWriter, r *http.Request) {
	res, ok := h.login(w, r, h.engine.SessionFinalizer())
	if !ok {
		return
	}
	h.cookies.SetGrant(w, res.Grant)
	middleware.WriteJSON(w, http.StatusOK, loginResponse{User: &res.Grant.Profile})
}

// POST /login/verify-2fa
func (h *handler) sessionVerify(w http.ResponseWriter, r *http.Request) {
	res, ok := h.verify(w, r, h.engine.SessionFinalizer())
	if !ok {
		return
	}
	h.cookies.SetGrant(w, res.Grant)
	middleware.WriteJSON(w, http.StatusOK, userResponse{User: res.Grant.Profile})
}

// POST /auth/login
func (h *handler) tokenLogin(w http.ResponseWriter, r *http.Request) {
	res, ok := h.login(w, r, h.engine.TokenFinalizer())
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, loginResponse{
		User:         &res.Grant.Profile,
		AccessToken:  res.Grant.AccessToken,
		RefreshToken: res.Grant.RefreshToken,
	})
}

// POST /auth/verify-2fa
func (h *handler) tokenVerify(w http.ResponseWriter, r *http.Request) {
	res, ok := h.verify(w, r, h.engine.TokenFinalizer())
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, userResponse{
		User:         res.Grant.Profile,
		AccessToken:  res.Grant.AccessToken,
		RefreshToken: res.Grant.RefreshToken,
	})
}

// POST /auth/refresh-token. Every rejection is a 401.
func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil || req.RefreshToken == "" {
		middleware.WriteJSON(w, http.StatusUnauthorized, messageResponse{Message: "invalid refresh token"})
		return
	}
	grant, err := h.engine.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		if middleware.StatusFor(err) == http.StatusInternalServerError {
			h.writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusUnauthorized, messageResponse{Message: "invalid refresh token"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
	})
}

// GET /auth/check
func (h *handler) check(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, portalauth.ErrSessionNotFound)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, checkResponse{Authenticated: true, User: p.Profile()})
}

// GET /auth/check-auth
func (h *handler) checkBearer(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, portalauth.ErrTokenMissing)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, checkResponse{Authenticated: true, User: p.Profile()})
}

// POST /logout always answers 200 and clears both cookies.
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.LoggerFromContext(ctx)

	if sid := h.cookies.SessionID(r); sid != "" {
		if err := h.engine.Logout(ctx, sid); err != nil {
			logger.WarnContext(ctx, "logout failed", slog.Any("error", err))
		}
	}
	if identifier, token, ok := h.cookies.RememberMe(r); ok {
		if err := h.engine.ForgetRememberMe(ctx, identifier, token); err != nil {
			logger.WarnContext(ctx, "remember-me revocation failed", slog.Any("error", err))
		}
	}

	h.cookies.Clear(w)
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *handler) identifier(r *http.Request) string {
	if sess, ok := middleware.SessionFromContext(r.Context()); ok {
		return sess.Identifier
	}
	return ""
}

// POST /auth/2fa/setup
func (h *handler) twoFactorSetup(w http.ResponseWriter, r *http.Request) {
	setup, err := h.engine.BeginTwoFactorSetup(r.Context(), h.identifier(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, twoFactorSetupResponse{
		Secret:     setup.Secret,
		OtpauthURL: setup.ProvisionURI,
		QRCode:     setup.QRCodeDataURI,
	})
}

// POST /auth/2fa/enable
func (h *handler) twoFactorEnable(w http.ResponseWriter, r *http.Request) {
	var req enableTwoFactorRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.engine.EnableTwoFactor(r.Context(), h.identifier(r), req.Secret, req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "two-factor authentication enabled"})
}

// POST /auth/2fa/disable
func (h *handler) twoFactorDisable(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.engine.DisableTwoFactor(r.Context(), h.identifier(r), req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "two-factor authentication disabled"})
}

// DELETE /auth/trusted-devices
func (h *handler) revokeTrustedDevices(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.RevokeTrustedDevices(r.Context(), h.identifier(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

// POST /auth/change-password signs the caller out everywhere.
func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.engine.ChangePassword(r.Context(), h.identifier(r), req.OldSecret, req.NewSecret); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cookies.Clear(w)
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "password changed, log in again"})
}
