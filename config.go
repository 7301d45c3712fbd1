package cyclecore

import (
	"errors"
	"time"

	"github.com/MrEthical07/cyclecore/internal/rate"
	"github.com/MrEthical07/cyclecore/keys"
	"github.com/MrEthical07/cyclecore/password"
	"github.com/MrEthical07/cyclecore/stats"
)

// maxLeeway bounds clock-skew tolerance on token expiry.
const maxLeeway = 2 * time.Minute

// Config is the full engine configuration. Start from [DefaultConfig] and override fields.
type Config struct {
	JWT        JWTConfig
	Keys       keys.Config
	Revocation RevocationConfig
	Stats      stats.Config
	Password   password.Config
	RateLimit  RateLimitConfig
	Metrics    MetricsConfig
	Audit      AuditConfig
}

// JWTConfig controls token lifetimes and registered claims.
type JWTConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	// Leeway tolerates clock skew on exp. Zero means a token is expired at exactly exp.
	Leeway time.Duration
	// AccessScope is copied into every access token.
	AccessScope []string
}

// RevocationConfig tunes the Redis revocation store.
type RevocationConfig struct {
	Prefix  string
	Timeout time.Duration
}

// RateLimitConfig controls failed-login throttling. It needs Redis when enabled.
type RateLimitConfig struct {
	Enabled          bool
	Prefix           string
	MaxFailures      int
	Window           time.Duration
	EnableIPThrottle bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// DefaultConfig returns a configuration with 15-minute access tokens, 7-day refresh tokens and
// the statistics defaults. Keys must still be supplied, either through Keys or
// [Builder.WithKeyProvider].
func DefaultConfig() Config {
	rl := rate.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "cyclecore",
		},
		Keys: keys.Config{
			Active:     keys.FileSpec{ID: "k1", Algorithm: keys.AlgRS256},
			MinRSABits: keys.DefaultMinRSABits,
		},
		Revocation: RevocationConfig{
			Prefix:  "crv",
			Timeout: 250 * time.Millisecond,
		},
		Stats:    stats.DefaultConfig(),
		Password: password.DefaultConfig(),
		RateLimit: RateLimitConfig{
			Enabled:          true,
			Prefix:           rl.Prefix,
			MaxFailures:      rl.MaxFailures,
			Window:           rl.Window,
			EnableIPThrottle: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessScope = append([]string(nil), cfg.JWT.AccessScope...)
	out.Keys.VerifyOnly = append([]keys.FileSpec(nil), cfg.Keys.VerifyOnly...)
	return out
}

// Validate checks the configuration for internal consistency. Key files are checked at Build.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > maxLeeway {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	switch c.Keys.Active.Algorithm {
	case "", keys.AlgRS256, keys.AlgEdDSA:
	default:
		return errors.New("Keys Algorithm must be RS256 or EdDSA")
	}
	if c.Keys.MinRSABits != 0 && c.Keys.MinRSABits < keys.DefaultMinRSABits {
		return errors.New("Keys MinRSABits must be >= 2048")
	}

	if c.Revocation.Timeout < 0 {
		return errors.New("Revocation Timeout must be >= 0")
	}

	if err := c.Stats.Validate(); err != nil {
		return err
	}
	if err := c.Password.Validate(); err != nil {
		return err
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.MaxFailures <= 0 {
			return errors.New("RateLimit MaxFailures must be > 0")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func (c RateLimitConfig) limiterConfig() rate.Config {
	return rate.Config{
		Prefix:           c.Prefix,
		MaxFailures:      c.MaxFailures,
		Window:           c.Window,
		EnableIPThrottle: c.EnableIPThrottle,
	}
}
