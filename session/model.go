package session

import "time"

// Session is the server-side record behind a session cookie. It holds a
// snapshot of the principal taken at creation time; freshness of that snapshot
// is re-checked by the Engine, not by this package.
type Session struct {
	SessionID  string
	Identifier string
	Role       string
	Admin      bool
	RememberMe bool

	// TimeoutSeconds is the inactivity window; the record expires when no
	// request touches it for this long.
	TimeoutSeconds int64
	CreatedAt      int64
	LastSeenAt     int64
}

// Timeout returns the inactivity window as a duration.
func (s *Session) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// IdleExpired reports whether the inactivity window has elapsed at now.
func (s *Session) IdleExpired(now time.Time) bool {
	return now.Unix()-s.LastSeenAt >= s.TimeoutSeconds
}
