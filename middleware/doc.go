// Package middleware adapts the portalauth Engine to net/http.
//
// # Gatekeeper
//
//   - [RequireBearer]: stateless path. Validates the Authorization bearer
//     token, requires an access token and binds the principal. Never touches
//     session or cookie state.
//   - [RevalidateSession]: stateful path. Re-reads the principal behind the
//     session cookie on every request, resumes from the remember-me cookie
//     when the session is gone, and clears cookies when the engine revokes.
//   - [RequireSession]: rejects requests RevalidateSession left anonymous.
//
// Both filters consult one shared [PublicPaths] allow-list and never run for
// allow-listed paths or CORS preflight requests.
//
// # Plumbing
//
// [RequestID], [ClientInfo], [StructuredLogger], [PanicRecovery] and
// [RateLimit] carry request metadata and protect the login endpoints.
//
// This package translates HTTP into Engine calls. It does not parse tokens or
// talk to Redis itself.
package middleware
