package portalauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func tokenLogin(t *testing.T, env *testEnv, rememberMe bool) *Grant {
	t.Helper()
	res, err := env.engine.Login(context.Background(), LoginRequest{
		Identifier: "alice@example.com",
		Secret:     testPassword,
		RememberMe: rememberMe,
	}, env.engine.TokenFinalizer())
	if err != nil {
		t.Fatalf("token login failed: %v", err)
	}
	return res.Grant
}

func TestAuthenticateBearerAcceptsAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)
	grant := tokenLogin(t, env, false)

	bp, err := env.engine.AuthenticateBearer(context.Background(), grant.AccessToken)
	if err != nil {
		t.Fatalf("bearer failed: %v", err)
	}
	if bp.Principal.Identifier != "alice@example.com" || bp.Claims.Type != TokenTypeAccess {
		t.Fatalf("unexpected bearer principal %+v", bp)
	}

	typ, err := env.engine.TypeOf(grant.RefreshToken)
	if err != nil || typ != TokenTypeRefresh {
		t.Fatalf("expected refresh type, got %q, %v", typ, err)
	}
}

func TestAuthenticateBearerRejections(t *testing.T) {
	env := newTestEnv(t, nil)
	grant := tokenLogin(t, env, false)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "missing", token: "", want: ErrTokenMissing},
		{name: "garbage", token: "not.a.jwt", want: ErrTokenInvalid},
		{name: "refresh token", token: grant.RefreshToken, want: ErrTokenWrongType},
		{name: "tampered", token: grant.AccessToken + "x", want: ErrTokenInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.engine.AuthenticateBearer(context.Background(), tc.token); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAuthenticateBearerPrincipalChecks(t *testing.T) {
	env := newTestEnv(t, nil)
	grant := tokenLogin(t, env, true)

	_ = env.store.SetActive(context.Background(), "alice@example.com", false)
	if _, err := env.engine.AuthenticateBearer(context.Background(), grant.AccessToken); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("expected ErrAccountDeactivated, got %v", err)
	}
	// The bearer path is stateless.
	if !env.mr.Exists("prm:alice@example.com") {
		t.Fatal("bearer check touched remember-me state")
	}

	env.store.remove("alice@example.com")
	if _, err := env.engine.AuthenticateBearer(context.Background(), grant.AccessToken); !errors.Is(err, ErrSessionInvalidated) {
		t.Fatalf("expected ErrSessionInvalidated, got %v", err)
	}
}

func TestRefreshTokensRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)
	grant := tokenLogin(t, env, false)

	if _, err := env.engine.RefreshTokens(context.Background(), grant.AccessToken); !errors.Is(err, ErrTokenWrongType) {
		t.Fatalf("expected ErrTokenWrongType, got %v", err)
	}
	if _, err := env.engine.RefreshTokens(context.Background(), "garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRefreshTokensKeepsRememberMe(t *testing.T) {
	env := newTestEnv(t, nil)
	grant := tokenLogin(t, env, true)

	next, err := env.engine.RefreshTokens(context.Background(), grant.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if !next.RememberMe {
		t.Fatal("expected remember-me preserved")
	}
	if next.AccessToken == "" || next.RefreshToken == "" || next.RefreshToken == grant.RefreshToken {
		t.Fatal("expected a new token pair")
	}
	if time.Until(next.AccessExpiresAt) < 6*24*time.Hour {
		t.Fatal("expected long access expiry on refreshed pair")
	}
	if _, err := env.engine.AuthenticateBearer(context.Background(), next.AccessToken); err != nil {
		t.Fatalf("refreshed access token rejected: %v", err)
	}
}

func TestRefreshTokensReuseAllowedByDefault(t *testing.T) {
	env := newTestEnv(t, nil)
	grant := tokenLogin(t, env, false)

	for i := 0; i < 2; i++ {
		if _, err := env.engine.RefreshTokens(context.Background(), grant.RefreshToken); err != nil {
			t.Fatalf("refresh %d failed: %v", i, err)
		}
	}
}

func TestRefreshTokensReuseRejectedWhenGuarded(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Token.RevokeRotatedRefresh = true })
	grant := tokenLogin(t, env, false)

	if _, err := env.engine.RefreshTokens(context.Background(), grant.RefreshToken); err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	if _, err := env.engine.RefreshTokens(context.Background(), grant.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected reused refresh token rejected, got %v", err)
	}
	if env.engine.MetricsSnapshot().Counters[MetricRefreshReuseRejected] != 1 {
		t.Fatal("expected reuse counter")
	}
}

func TestRefreshTokensDeactivatedPrincipal(t *testing.T) {
	env := newTestEnv(t, nil)
	grant := tokenLogin(t, env, false)

	_ = env.store.SetActive(context.Background(), "alice@example.com", false)
	if _, err := env.engine.RefreshTokens(context.Background(), grant.RefreshToken); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("expected ErrAccountDeactivated, got %v", err)
	}
}
