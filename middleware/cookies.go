package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/internal"
	"github.com/MrEthical07/portalauth/session"
)

// Cookies writes and reads the session and remember-me cookies.
type Cookies struct {
	SessionName    string
	RememberMeName string
	Path           string
	Domain         string
	Secure         bool
	SameSite       http.SameSite
	// RememberMeMaxAge is the lifetime of the remember-me cookie.
	RememberMeMaxAge time.Duration
}

// CookiesFromConfig derives cookie settings from the engine configuration.
func CookiesFromConfig(cfg portalauth.Config) Cookies {
	return Cookies{
		SessionName:      cfg.Session.CookieName,
		RememberMeName:   cfg.Session.RememberMeCookieName,
		Path:             cfg.Session.CookiePath,
		Domain:           cfg.Session.CookieDomain,
		Secure:           cfg.Session.CookieSecure,
		SameSite:         cfg.Session.CookieSameSite,
		RememberMeMaxAge: time.Duration(cfg.RememberMe.Days) * 24 * time.Hour,
	}
}

func (c Cookies) base(name, value string) *http.Cookie {
	path := c.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: c.SameSite,
	}
}

// SetSession binds sess to the response. Under remember-me the cookie is
// persistent with max-age equal to the inactivity window; otherwise it is a
// browser-session cookie.
func (c Cookies) SetSession(w http.ResponseWriter, sess *session.Session) {
	cookie := c.base(c.SessionName, sess.SessionID)
	if sess.RememberMe {
		cookie.MaxAge = int(sess.TimeoutSeconds)
	}
	http.SetCookie(w, cookie)
}

// SetRememberMe writes the remember-me cookie.
func (c Cookies) SetRememberMe(w http.ResponseWriter, identifier, token string) {
	cookie := c.base(c.RememberMeName, internal.EncodeRememberMeCookie(identifier, token))
	cookie.MaxAge = int(c.RememberMeMaxAge / time.Second)
	http.SetCookie(w, cookie)
}

// SetGrant writes every cookie a session grant carries. A grant without a
// remember-me token clears a stale remember-me cookie.
func (c Cookies) SetGrant(w http.ResponseWriter, grant *portalauth.Grant) {
	if grant == nil || grant.Session == nil {
		return
	}
	c.SetSession(w, grant.Session)
	if grant.RememberMeToken != "" {
		c.SetRememberMe(w, grant.Session.Identifier, grant.RememberMeToken)
		return
	}
	c.clear(w, c.RememberMeName)
}

// Clear expires both cookies, replacing any value for them already set on
// this response.
func (c Cookies) Clear(w http.ResponseWriter) {
	c.clear(w, c.SessionName)
	c.clear(w, c.RememberMeName)
}

func (c Cookies) clear(w http.ResponseWriter, name string) {
	dropSetCookie(w.Header(), name)
	cookie := c.base(name, "")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}

// SessionID returns the session cookie value, or "" when the cookie is absent
// or does not hold a well-formed session id.
func (c Cookies) SessionID(r *http.Request) string {
	cookie, err := r.Cookie(c.SessionName)
	if err != nil {
		return ""
	}
	if _, err := internal.ParseSessionID(cookie.Value); err != nil {
		return ""
	}
	return cookie.Value
}

// RememberMe returns the identifier and token carried by the remember-me cookie.
func (c Cookies) RememberMe(r *http.Request) (identifier, token string, ok bool) {
	cookie, err := r.Cookie(c.RememberMeName)
	if err != nil || cookie.Value == "" {
		return "", "", false
	}
	identifier, token, err = internal.DecodeRememberMeCookie(cookie.Value)
	if err != nil {
		return "", "", false
	}
	return identifier, token, true
}

func dropSetCookie(h http.Header, name string) {
	prefix := name + "="
	var kept []string
	for _, v := range h.Values("Set-Cookie") {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	h.Del("Set-Cookie")
	for _, v := range kept {
		h.Add("Set-Cookie", v)
	}
}
