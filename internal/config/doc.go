// Package config loads the portalauth server configuration.
//
// Values come from Default, then an optional TOML file named by
// PORTALAUTH_CONFIG, then PORTALAUTH_-prefixed environment variables, in
// that order. The result is validated before it is returned, and
// [Config.Engine] turns it into a portalauth.Config.
package config
