// Package session provides Redis-backed session persistence and compact binary session
// encoding.
//
// # Single session per identifier
//
// Each identifier owns at most one session. [Store.Create] swaps the owner index and
// deletes the previous session record inside one Lua script, so there is no window in
// which two sessions of the same identifier are both valid.
//
// # Inactivity expiry
//
// Records carry their own inactivity window. Redis TTL evicts idle records; reads
// additionally compare LastSeenAt against the window so an idle record is never
// returned even before eviction. [Store.Touch] slides both the record and the owner
// index, and refuses to resurrect a session that was deleted or replaced.
//
// # What this package must NOT do
//
//   - Import portalauth, jwt or any HTTP package (no upward imports).
//   - Decide whether a principal may still act; the Engine re-checks that.
//   - Store secrets in [Session] fields.
package session
