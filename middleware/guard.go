package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrEthical07/portalauth"
)

// RequireBearer is the stateless gatekeeper filter. A missing or malformed
// Authorization header is 401; an invalid, expired or refresh token is 403; a
// deactivated principal is 403 and a vanished one 401.
func RequireBearer(engine *portalauth.Engine, public *PublicPaths) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public.Allows(r) {
				next.ServeHTTP(w, r)
				return
			}
			if engine == nil {
				WriteError(w, portalauth.ErrEngineNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, portalauth.ErrTokenMissing)
				return
			}

			bp, err := engine.AuthenticateBearer(r.Context(), token)
			if err != nil {
				logInternal(r, err)
				WriteError(w, err)
				return
			}

			ctx := withPrincipal(r.Context(), bp.Principal)
			ctx = withClaims(ctx, bp.Claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RevalidateSession is the stateful gatekeeper filter. When the request
// carries a session cookie, the principal behind it is re-read and bound to
// the context. A vanished principal clears the cookies and answers 401; a
// deactivated one clears the cookies and answers 403. Without a live session
// the remember-me cookie, if valid, resumes a fresh one. Requests without
// either cookie pass through anonymous.
func RevalidateSession(engine *portalauth.Engine, public *PublicPaths, cookies Cookies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public.Allows(r) || engine == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			if sid := cookies.SessionID(r); sid != "" {
				p, sess, err := engine.RevalidateSession(ctx, sid)
				switch {
				case err == nil:
					cookies.SetSession(w, sess)
					ctx = withSession(withPrincipal(ctx, p), sess)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				case errors.Is(err, portalauth.ErrSessionInvalidated), errors.Is(err, portalauth.ErrAccountDeactivated):
					cookies.Clear(w)
					WriteError(w, err)
					return
				case !errors.Is(err, portalauth.ErrSessionNotFound):
					logInternal(r, err)
					WriteError(w, err)
					return
				}
			}

			identifier, token, ok := cookies.RememberMe(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			p, grant, err := engine.ResumeSession(ctx, identifier, token)
			switch {
			case err == nil:
				cookies.SetGrant(w, grant)
				ctx = withSession(withPrincipal(ctx, p), grant.Session)
				next.ServeHTTP(w, r.WithContext(ctx))
			case errors.Is(err, portalauth.ErrAccountDeactivated):
				cookies.Clear(w)
				WriteError(w, err)
			case errors.Is(err, portalauth.ErrSessionNotFound), errors.Is(err, portalauth.ErrSessionInvalidated):
				cookies.Clear(w)
				next.ServeHTTP(w, r)
			default:
				logInternal(r, err)
				WriteError(w, err)
			}
		})
	}
}

// RequireSession rejects requests that RevalidateSession left anonymous.
func RequireSession(public *PublicPaths) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public.Allows(r) {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := SessionFromContext(r.Context()); !ok {
				WriteError(w, portalauth.ErrSessionNotFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func logInternal(r *http.Request, err error) {
	if StatusFor(err) != http.StatusInternalServerError {
		return
	}
	LoggerFromContext(r.Context()).ErrorContext(r.Context(), "gatekeeper failure", slog.Any("error", err))
}
