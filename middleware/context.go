package middleware

import (
	"context"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/jwt"
	"github.com/MrEthical07/portalauth/session"
)

type (
	requestIDKey struct{}
	principalKey struct{}
	sessionKey   struct{}
	claimsKey    struct{}
	clientIPKey  struct{}
)

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// PrincipalFromContext returns the principal bound by either gatekeeper filter.
func PrincipalFromContext(ctx context.Context) (*portalauth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*portalauth.Principal)
	return p, ok && p != nil
}

// SessionFromContext returns the session bound by RevalidateSession.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*session.Session)
	return s, ok && s != nil
}

// ClaimsFromContext returns the access-token claims bound by RequireBearer.
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*jwt.Claims)
	return c, ok && c != nil
}

func withPrincipal(ctx context.Context, p *portalauth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func withSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func withClaims(ctx context.Context, c *jwt.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}
