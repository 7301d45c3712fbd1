package cyclecore

import (
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute || cfg.JWT.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected default lifetimes %v/%v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.Stats.Alpha != 0.3 {
		t.Fatalf("unexpected default alpha %v", cfg.Stats.Alpha)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"zero_access_ttl":      func(c *Config) { c.JWT.AccessTTL = 0 },
		"zero_refresh_ttl":     func(c *Config) { c.JWT.RefreshTTL = 0 },
		"refresh_below_access": func(c *Config) { c.JWT.RefreshTTL = time.Minute },
		"negative_leeway":      func(c *Config) { c.JWT.Leeway = -time.Second },
		"huge_leeway":          func(c *Config) { c.JWT.Leeway = time.Hour },
		"unknown_algorithm":    func(c *Config) { c.Keys.Active.Algorithm = "HS256" },
		"weak_rsa_floor":       func(c *Config) { c.Keys.MinRSABits = 1024 },
		"negative_timeout":     func(c *Config) { c.Revocation.Timeout = -1 },
		"alpha_zero":           func(c *Config) { c.Stats.Alpha = 0 },
		"alpha_above_one":      func(c *Config) { c.Stats.Alpha = 1.5 },
		"weak_argon2":          func(c *Config) { c.Password.Memory = 1024 },
		"rate_limit_budget":    func(c *Config) { c.RateLimit.MaxFailures = 0 },
		"rate_limit_window":    func(c *Config) { c.RateLimit.Window = 0 },
		"audit_buffer": func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		},
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestDisabledRateLimitSkipsBudgetChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.MaxFailures = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected disabled limiter to skip checks, got %v", err)
	}
}

func TestWithConfigCopiesSlices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.AccessScope = []string{"stats:read"}
	b := New().WithConfig(cfg)
	cfg.JWT.AccessScope[0] = "mutated"
	if b.config.JWT.AccessScope[0] != "stats:read" {
		t.Fatal("builder config aliases caller slice")
	}
}
