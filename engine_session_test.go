package portalauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRevalidateSessionRenewsIdleWindow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	sid := env.login(t, ctx, false).Grant.Session.SessionID

	env.mr.FastForward(20 * time.Minute)
	p, sess, err := env.engine.RevalidateSession(ctx, sid)
	if err != nil {
		t.Fatalf("revalidate failed: %v", err)
	}
	if p.Identifier != "alice@example.com" || sess.SessionID != sid {
		t.Fatalf("unexpected principal/session %+v %+v", p, sess)
	}
	if ttl := env.mr.TTL("ps:s:" + sid); ttl != 30*time.Minute {
		t.Fatalf("expected ttl renewed to 30m, got %v", ttl)
	}

	env.mr.FastForward(30*time.Minute + time.Second)
	if _, _, err := env.engine.RevalidateSession(ctx, sid); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected idle session gone, got %v", err)
	}
}

func TestRevalidateSessionUnknownID(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, sid := range []string{"", "does-not-exist"} {
		if _, _, err := env.engine.RevalidateSession(context.Background(), sid); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("sid %q: expected ErrSessionNotFound, got %v", sid, err)
		}
	}
}

func TestRevalidateSessionMissingPrincipalInvalidates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	sid := env.login(t, ctx, true).Grant.Session.SessionID

	env.store.remove("alice@example.com")

	if _, _, err := env.engine.RevalidateSession(ctx, sid); !errors.Is(err, ErrSessionInvalidated) {
		t.Fatalf("expected ErrSessionInvalidated, got %v", err)
	}
	if env.mr.Exists("ps:s:" + sid) {
		t.Fatal("session survived missing principal")
	}
	if env.mr.Exists("prm:alice@example.com") {
		t.Fatal("remember-me survived missing principal")
	}
}

func TestRevalidateSessionDeactivatedRevokesEverything(t *testing.T) {
	env := newTestEnv(t, nil)
	secret := env.enableTwoFactor(t, "alice@example.com")
	ctx := deviceContext()

	pending := env.login(t, ctx, true)
	res, err := env.engine.VerifyTwoFactor(ctx, VerifyRequest{PendingID: pending.PendingID, Code: env.code(t, secret), TrustDevice: true}, env.engine.SessionFinalizer())
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	sid := res.Grant.Session.SessionID

	_ = env.store.SetActive(context.Background(), "alice@example.com", false)

	if _, _, err := env.engine.RevalidateSession(ctx, sid); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("expected ErrAccountDeactivated, got %v", err)
	}
	if env.mr.Exists("ps:s:" + sid) {
		t.Fatal("session survived deactivation")
	}
	if env.mr.Exists("prm:alice@example.com") {
		t.Fatal("remember-me survived deactivation")
	}
	for _, key := range env.mr.Keys() {
		if strings.HasPrefix(key, "ptd:") {
			t.Fatalf("trusted device key %q survived deactivation", key)
		}
	}

	if _, _, err := env.engine.RevalidateSession(ctx, sid); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected destroyed session, got %v", err)
	}
}

func TestRevalidateSessionBackendFailureKeepsSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	sid := env.login(t, ctx, false).Grant.Session.SessionID

	env.store.failWith(errors.New("identity store down"))
	if _, _, err := env.engine.RevalidateSession(ctx, sid); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if !env.mr.Exists("ps:s:" + sid) {
		t.Fatal("backend failure must not invalidate the session")
	}
}

func TestRevalidateSessionRemembersOnlyWhileTokenExists(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	sid := env.login(t, ctx, true).Grant.Session.SessionID

	if _, _, err := env.engine.RevalidateSession(ctx, sid); err != nil {
		t.Fatalf("revalidate failed: %v", err)
	}
	if ttl := env.mr.TTL("ps:s:" + sid); ttl != 7*24*time.Hour {
		t.Fatalf("expected 7d ttl, got %v", ttl)
	}

	env.mr.Del("prm:alice@example.com")
	_, sess, err := env.engine.RevalidateSession(ctx, sid)
	if err != nil {
		t.Fatalf("revalidate failed: %v", err)
	}
	if sess.RememberMe {
		t.Fatal("expected remember-me flag dropped")
	}
	if ttl := env.mr.TTL("ps:s:" + sid); ttl != 30*time.Minute {
		t.Fatalf("expected ttl shortened to 30m, got %v", ttl)
	}
}

func TestResumeSessionRotatesRememberMe(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	grant := env.login(t, ctx, true).Grant
	oldSID := grant.Session.SessionID
	oldToken := grant.RememberMeToken

	env.mr.Del("ps:s:" + oldSID)

	p, resumed, err := env.engine.ResumeSession(ctx, "alice@example.com", oldToken)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if p.Identifier != "alice@example.com" {
		t.Fatalf("unexpected principal %+v", p)
	}
	if resumed.Session == nil || resumed.Session.SessionID == oldSID || !resumed.Session.RememberMe {
		t.Fatalf("unexpected resumed session %+v", resumed.Session)
	}
	if resumed.RememberMeToken == "" || resumed.RememberMeToken == oldToken {
		t.Fatal("expected rotated remember-me token")
	}
	if _, _, err := env.engine.ResumeSession(ctx, "alice@example.com", oldToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected rotated token rejected, got %v", err)
	}
	if env.engine.MetricsSnapshot().Counters[MetricSessionResumed] != 1 {
		t.Fatal("expected one resumed session")
	}
}

func TestResumeSessionDeactivatedPrincipal(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	token := env.login(t, ctx, true).Grant.RememberMeToken

	_ = env.store.SetActive(ctx, "alice@example.com", false)
	if _, _, err := env.engine.ResumeSession(ctx, "alice@example.com", token); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("expected ErrAccountDeactivated, got %v", err)
	}
	if env.mr.Exists("prm:alice@example.com") {
		t.Fatal("remember-me survived deactivation")
	}
}

func TestLogoutDestroysSessionAndRememberMe(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	grant := env.login(t, ctx, true).Grant

	if err := env.engine.Logout(ctx, grant.Session.SessionID); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if env.mr.Exists("ps:s:" + grant.Session.SessionID) {
		t.Fatal("session survived logout")
	}
	if _, _, err := env.engine.ResumeSession(ctx, "alice@example.com", grant.RememberMeToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected remember-me revoked by logout, got %v", err)
	}

	if err := env.engine.Logout(ctx, grant.Session.SessionID); err != nil {
		t.Fatalf("second logout should be a no-op, got %v", err)
	}
	if err := env.engine.Logout(ctx, ""); err != nil {
		t.Fatalf("empty logout should be a no-op, got %v", err)
	}
}

func TestForgetRememberMeRequiresCurrentToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	token := env.login(t, ctx, true).Grant.RememberMeToken

	if err := env.engine.ForgetRememberMe(ctx, "alice@example.com", "not-the-token"); err != nil {
		t.Fatalf("forget with wrong token failed: %v", err)
	}
	if !env.mr.Exists("prm:alice@example.com") {
		t.Fatal("wrong token must not revoke remember-me")
	}

	if err := env.engine.ForgetRememberMe(ctx, "alice@example.com", token); err != nil {
		t.Fatalf("forget failed: %v", err)
	}
	if env.mr.Exists("prm:alice@example.com") {
		t.Fatal("remember-me survived forget")
	}
}

func TestDeactivatePrincipalRejectsNextRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	sid := env.login(t, ctx, true).Grant.Session.SessionID

	if err := env.engine.DeactivatePrincipal(ctx, "alice@example.com"); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, _, err := env.engine.RevalidateSession(ctx, sid); err == nil {
		t.Fatal("expected session rejected after deactivation")
	}
	if env.mr.Exists("ps:s:"+sid) || env.mr.Exists("prm:alice@example.com") {
		t.Fatal("state survived deactivation")
	}
	if err := env.engine.DeactivatePrincipal(ctx, "nobody@example.com"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}
