package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newTestManager(t *testing.T) (*Manager, ed25519.PrivateKey) {
	t.Helper()
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:           24 * time.Hour,
		RememberMeAccessTTL: 7 * 24 * time.Hour,
		RefreshTTL:          30 * 24 * time.Hour,
		SigningMethod:       MethodEd25519,
		PrivateKey:          priv,
		PublicKey:           pub,
		Issuer:              "portal",
		Audience:            "portal-api",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, priv
}

func testSubject() Subject {
	return Subject{Identifier: "a@x.com", Role: "CLIENT", Email: "a@x.com", FirstName: "Ada"}
}

func TestIssueCarriesTypesAndClaims(t *testing.T) {
	m, _ := newTestManager(t)

	pair, err := m.Issue(testSubject(), false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	access, err := m.Validate(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if access.Type != TypeAccess || access.Subject != "a@x.com" || access.Role != "CLIENT" || access.FirstName != "Ada" {
		t.Fatalf("unexpected access claims: %+v", access)
	}

	refresh, err := m.Validate(pair.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if refresh.Type != TypeRefresh || refresh.Subject != "a@x.com" {
		t.Fatalf("unexpected refresh claims: %+v", refresh)
	}
	if refresh.Role != "" || refresh.Email != "" {
		t.Fatal("refresh token should carry only the subject")
	}
	if refresh.ID == "" || refresh.ID != pair.RefreshID {
		t.Fatal("refresh token should carry its jti")
	}
}

func TestAccessTTLFollowsRememberMe(t *testing.T) {
	m, _ := newTestManager(t)
	fixed := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return fixed }

	short, err := m.Issue(testSubject(), false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	long, err := m.Issue(testSubject(), true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if got := short.AccessExpiresAt.Sub(fixed); got != 24*time.Hour {
		t.Fatalf("expected 24h access TTL, got %s", got)
	}
	if got := long.AccessExpiresAt.Sub(fixed); got != 7*24*time.Hour {
		t.Fatalf("expected 7d access TTL, got %s", got)
	}
	if long.RefreshExpiresAt.Sub(fixed) <= long.AccessExpiresAt.Sub(fixed) {
		t.Fatal("refresh must outlive access")
	}

	claims, err := m.Validate(long.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !claims.RememberMe {
		t.Fatal("expected remember-me claim")
	}
}

func TestTypeOf(t *testing.T) {
	m, _ := newTestManager(t)
	pair, err := m.Issue(testSubject(), false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if typ, err := m.TypeOf(pair.AccessToken); err != nil || typ != TypeAccess {
		t.Fatalf("expected access, got %q %v", typ, err)
	}
	if typ, err := m.TypeOf(pair.RefreshToken); err != nil || typ != TypeRefresh {
		t.Fatalf("expected refresh, got %q %v", typ, err)
	}
	if _, err := m.TypeOf("garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestTypedValidationRejectsConfusion(t *testing.T) {
	m, _ := newTestManager(t)
	pair, err := m.Issue(testSubject(), true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := m.ValidateRefresh(pair.AccessToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected access token rejected as refresh, got %v", err)
	}
	if _, err := m.ValidateAccess(pair.RefreshToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected refresh token rejected as access, got %v", err)
	}
	if _, err := m.ValidateAccess(pair.AccessToken); err != nil {
		t.Fatalf("access as access: %v", err)
	}
	if _, err := m.ValidateRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("refresh as refresh: %v", err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	m, _ := newTestManager(t)
	m.now = func() time.Time { return time.Now().Add(-25 * time.Hour) }
	pair, err := m.Issue(testSubject(), false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	m.now = time.Now

	if _, err := m.Validate(pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired access token to fail, got %v", err)
	}
	if _, err := m.Validate(pair.RefreshToken); err != nil {
		t.Fatalf("refresh should still be valid: %v", err)
	}
}

func TestValidateRejectsWrongAlgorithm(t *testing.T) {
	m, _ := newTestManager(t)

	claims := Claims{Type: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "a@x.com",
		Issuer:    "portal",
		Audience:  gjwt.ClaimStrings{"portal-api"},
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Validate(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestValidateIssuerAudience(t *testing.T) {
	m, priv := newTestManager(t)

	sign := func(iss, aud string) string {
		claims := Claims{Type: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "a@x.com",
			Issuer:    iss,
			Audience:  gjwt.ClaimStrings{aud},
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return s
	}

	if _, err := m.Validate(sign("portal", "portal-api")); err != nil {
		t.Fatalf("expected matching token to pass: %v", err)
	}
	if _, err := m.Validate(sign("other", "portal-api")); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.Validate(sign("portal", "other-api")); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	m, priv := newTestManager(t)
	claims := Claims{Type: "id", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "a@x.com",
		Issuer:    "portal",
		Audience:  gjwt.ClaimStrings{"portal-api"},
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Validate(token); err != nil {
		t.Fatalf("Validate does not check type: %v", err)
	}
	if _, err := m.TypeOf(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected unknown type to be invalid, got %v", err)
	}
	if _, err := m.ValidateAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected unknown type to be invalid, got %v", err)
	}
}

func TestUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, priv2 := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1, "k2": pub2},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	pair, err := m.Issue(testSubject(), false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.ValidateAccess(pair.AccessToken); err != nil {
		t.Fatalf("expected own token to pass: %v", err)
	}

	claims := Claims{Type: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "a@x.com",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k3"
	unknown, _ := tok.SignedString(priv2)
	if _, err := m.Validate(unknown); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	rotated := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	rotated.Header["kid"] = "k2"
	good, _ := rotated.SignedString(priv2)
	if _, err := m.Validate(good); err != nil {
		t.Fatalf("expected rotated kid to pass: %v", err)
	}
}

func TestHS256RoundTrip(t *testing.T) {
	m, err := NewManager(Config{
		AccessTTL:     time.Hour,
		RefreshTTL:    48 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	pair, err := m.Issue(testSubject(), false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.ValidateAccess(pair.AccessToken); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	_, priv := newEdKeys(t)
	cases := []Config{
		{AccessTTL: 0, RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: make([]byte, 32)},
		{AccessTTL: time.Hour, RefreshTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: make([]byte, 32)},
		{AccessTTL: time.Hour, RefreshTTL: 2 * time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		{AccessTTL: time.Hour, RefreshTTL: 2 * time.Hour, SigningMethod: MethodEd25519, PrivateKey: priv},
		{AccessTTL: time.Hour, RefreshTTL: 2 * time.Hour, SigningMethod: "rs256"},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config to be rejected", i)
		}
	}
}
