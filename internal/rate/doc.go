// Package rate implements the Redis-backed login throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR plus EXPIRE on the first hit. Key prefixes:
//   - pl:  failed logins per identifier (hashed)
//   - pli: failed logins per client IP
package rate
