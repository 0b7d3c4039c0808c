// Package jwt issues and verifies typed access and refresh tokens using configured
// signing keys and strict validation semantics.
//
// Every token carries a token_type claim. [Manager.Validate] checks signature and
// expiry only; [Manager.ValidateAccess] and [Manager.ValidateRefresh] additionally
// pin the type so a refresh token is never accepted as API access and vice versa.
// Tokens are self-contained: this package keeps no server-side record of them.
package jwt
