// Package totp generates enrollment material for time-based one-time passwords and
// validates submitted codes inside a bounded clock-skew window.
//
// Code generation and comparison are delegated to github.com/pquerna/otp, which
// compares codes in constant time. This package adds strict input shaping (digit
// count, numeric only, non-empty secret) so malformed input is a plain rejection
// rather than an error the caller has to classify.
//
// # What this package must NOT do
//
//   - Persist secrets; enrollment is confirmed and stored by the caller.
//   - Import any other portalauth package.
package totp
