package portalauth

import (
	"testing"
	"time"
)

func TestDefaultConfigNeedsKey(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing key to fail validation")
	}
	tc := testConfig()
	if err := tc.Validate(); err != nil {
		t.Fatalf("expected test config valid, got %v", err)
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Session.IdleTimeout != 30*time.Minute || cfg.Session.RememberMeIdleTimeout != 7*24*time.Hour {
		t.Fatalf("unexpected session timeouts %+v", cfg.Session)
	}
	if cfg.Token.AccessTTL != 24*time.Hour || cfg.Token.RememberMeAccessTTL != 7*24*time.Hour {
		t.Fatalf("unexpected token ttls %+v", cfg.Token)
	}
	if cfg.PendingAuth.TTL != 5*time.Minute || cfg.DeviceTrust.Validity != 30*24*time.Hour {
		t.Fatal("unexpected pending/device defaults")
	}
	if cfg.Token.RevokeRotatedRefresh {
		t.Fatal("refresh reuse guard must be off by default")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "baseline",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "remember-me access shorter than access",
			mutate: func(c *Config) {
				c.Token.RememberMeAccessTTL = time.Hour
			},
			wantValid: false,
		},
		{
			name: "unsupported signing method",
			mutate: func(c *Config) {
				c.Token.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "leeway too large",
			mutate: func(c *Config) {
				c.Token.Leeway = 10 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "remember-me idle shorter than idle",
			mutate: func(c *Config) {
				c.Session.RememberMeIdleTimeout = time.Minute
			},
			wantValid: false,
		},
		{
			name: "same cookie names",
			mutate: func(c *Config) {
				c.Session.RememberMeCookieName = c.Session.CookieName
			},
			wantValid: false,
		},
		{
			name: "eight digit codes",
			mutate: func(c *Config) {
				c.TwoFactor.Digits = 8
			},
			wantValid: true,
		},
		{
			name: "seven digit codes",
			mutate: func(c *Config) {
				c.TwoFactor.Digits = 7
			},
			wantValid: false,
		},
		{
			name: "zero pending ttl",
			mutate: func(c *Config) {
				c.PendingAuth.TTL = 0
			},
			wantValid: false,
		},
		{
			name: "zero pending attempts",
			mutate: func(c *Config) {
				c.PendingAuth.MaxAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "remember-me days out of range",
			mutate: func(c *Config) {
				c.RememberMe.Days = 400
			},
			wantValid: false,
		},
		{
			name: "weak argon2 memory",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
			wantValid: false,
		},
		{
			name: "throttle disabled ignores limits",
			mutate: func(c *Config) {
				c.Security.EnableLoginThrottle = false
				c.Security.MaxLoginFailures = 0
			},
			wantValid: true,
		},
		{
			name: "throttle enabled needs limit",
			mutate: func(c *Config) {
				c.Security.MaxLoginFailures = 0
			},
			wantValid: false,
		},
		{
			name: "relative public path",
			mutate: func(c *Config) {
				c.Gatekeeper.PublicPaths = []string{"login"}
			},
			wantValid: false,
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
