// Package httpapi is the HTTP surface of the portalauth server: the cookie
// session endpoints, the bearer token endpoints, account management behind
// the session gatekeeper, health and metrics.
package httpapi
