// Package stores provides the Redis-backed records behind the login flow:
// the pending-auth cache, trusted devices, remember-me tokens and the
// refresh rotation guard.
//
// # Design
//
// Each store persists a versioned, binary-encoded record with a Redis TTL.
// Reads also compare the stored timestamps against the clock and delete stale
// records, so an entry is never served past its deadline even when Redis has
// not evicted it yet. Single-winner operations (pending-auth Consume, refresh
// MarkUsed) map to one atomic Redis command.
//
// Secrets handed to clients are never stored in plaintext; only their
// SHA-256 is persisted and comparisons are constant-time.
//
// # What this package must NOT do
//
//   - Import portalauth or any sibling internal package.
//   - Make authentication decisions.
package stores
