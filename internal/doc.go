// Package internal contains helper utilities that are intentionally private to portalauth:
// secure random identifiers, remember-me cookie packing and device fingerprints.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - config: server configuration loading (TOML + environment)
//   - httpapi: chi router exposing the login, 2FA, token and session endpoints
//   - pgstore: PostgreSQL identity store and schema migrations
//   - rate: Redis-backed failed-login throttle
//   - stores: Redis stores for pending logins, trusted devices and remember-me tokens
//
// # What this package must NOT do
//
//   - Export types that appear in the public portalauth API.
//   - Be imported by any package outside the portalauth module.
package internal
