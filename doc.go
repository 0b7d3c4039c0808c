// Package portalauth authenticates users of a service portal over two
// transports that share one login state machine: cookie sessions and bearer
// tokens.
//
// The Engine verifies credentials, parks logins that need a TOTP code in a
// short-lived Redis cache, lets trusted devices skip the code, and finalizes
// through a [Finalizer]: [SessionFinalizer] creates the single live session of
// a principal, [TokenFinalizer] issues an access/refresh pair. On every
// request [Engine.RevalidateSession] or [Engine.AuthenticateBearer] re-checks
// that the principal still exists and is active; a deactivated principal
// loses its session, remember-me token and trusted devices on first contact.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # What this package must NOT do
//
//   - Write HTTP responses or cookies (see the middleware package).
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Hold per-principal state in process memory.
package portalauth
