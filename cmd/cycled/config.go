package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/MrEthical07/cyclecore"
	"github.com/MrEthical07/cyclecore/keys"
	"github.com/ilyakaznacheev/cleanenv"
)

// daemonConfig is read once at startup. Sources, lowest priority first: defaults, the YAML file
// named by -config or CONFIG_PATH, the environment, flags.
type daemonConfig struct {
	Addr        string `yaml:"addr"         env:"CYCLED_ADDR"  env-default:":8080"`
	DatabaseDSN string `yaml:"database_url" env:"DATABASE_URL"`
	RedisAddr   string `yaml:"redis_addr"   env:"REDIS_ADDR"`

	KeyID          string `yaml:"key_id"           env:"CYCLED_KEY_ID"      env-default:"k1"`
	KeyAlgorithm   string `yaml:"key_algorithm"    env:"CYCLED_KEY_ALG"     env-default:"RS256"`
	PrivateKeyPath string `yaml:"private_key_path" env:"CYCLED_PRIVATE_KEY"`
	PublicKeyPath  string `yaml:"public_key_path"  env:"CYCLED_PUBLIC_KEY"`

	PreviousKeyID        string `yaml:"previous_key_id"         env:"CYCLED_PREVIOUS_KEY_ID"`
	PreviousKeyAlgorithm string `yaml:"previous_key_algorithm"  env:"CYCLED_PREVIOUS_KEY_ALG"    env-default:"RS256"`
	PreviousPublicKey    string `yaml:"previous_public_key_path" env:"CYCLED_PREVIOUS_PUBLIC_KEY"`

	AccessTTL  time.Duration `yaml:"access_ttl"  env:"ACCESS_TOKEN_TTL"  env-default:"15m"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	Issuer     string        `yaml:"issuer"      env:"JWT_ISSUER"        env-default:"cyclecore"`
	Audience   string        `yaml:"audience"    env:"JWT_AUDIENCE"`

	CookieSecure   bool `yaml:"cookie_secure"     env:"COOKIE_SECURE"`
	TrustProxy     bool `yaml:"trust_proxy"       env:"TRUST_PROXY"`
	AuthRatePerMin int  `yaml:"auth_rate_per_min" env:"RATE_LIMIT_AUTH" env-default:"30"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// cleanenv applies env-default to every zero-valued field, so on-by-default switches are
	// spelled Disable*.
	DisableAudit             bool `yaml:"disable_audit"              env:"AUDIT_DISABLED"`
	DisableLatencyHistograms bool `yaml:"disable_latency_histograms" env:"METRICS_LATENCY_HISTOGRAMS_DISABLED"`
}

// readConfig fills a daemonConfig from path (when set) and the environment.
func readConfig(path string) (daemonConfig, error) {
	var cfg daemonConfig
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return daemonConfig{}, fmt.Errorf("read config %q: %w", path, err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return daemonConfig{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, nil
}

// loadConfig parses flags from args, reads file and environment, then applies the flags that
// were set. It returns the arguments left after the flags.
func loadConfig(args []string, stderr io.Writer) (daemonConfig, []string, error) {
	fs := flag.NewFlagSet("cycled", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", os.Getenv("CONFIG_PATH"), "YAML config file")
	addr := fs.String("a", "", "address and port to listen on")
	dsn := fs.String("d", "", "postgres DSN; empty keeps statistics in memory and disables login")
	redisAddr := fs.String("r", "", "redis address; empty uses an in-process revocation store")
	privateKey := fs.String("k", "", "PEM private key of the active signing generation")
	kid := fs.String("kid", "", "key id of the active generation")
	accessMinutes := fs.Int("t", 0, "access token lifetime (in minutes)")
	refreshMinutes := fs.Int("rt", 0, "refresh token lifetime (in minutes)")

	if err := fs.Parse(args); err != nil {
		return daemonConfig{}, nil, err
	}

	cfg, err := readConfig(*configPath)
	if err != nil {
		return daemonConfig{}, nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "a":
			cfg.Addr = *addr
		case "d":
			cfg.DatabaseDSN = *dsn
		case "r":
			cfg.RedisAddr = *redisAddr
		case "k":
			cfg.PrivateKeyPath = *privateKey
		case "kid":
			cfg.KeyID = *kid
		case "t":
			cfg.AccessTTL = time.Duration(*accessMinutes) * time.Minute
		case "rt":
			cfg.RefreshTTL = time.Duration(*refreshMinutes) * time.Minute
		}
	})

	return cfg, fs.Args(), nil
}

// engineConfig maps the daemon settings onto the library configuration.
func (c daemonConfig) engineConfig() cyclecore.Config {
	cfg := cyclecore.DefaultConfig()
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.JWT.RefreshTTL = c.RefreshTTL
	cfg.JWT.Issuer = c.Issuer
	cfg.JWT.Audience = c.Audience

	cfg.Keys.Active = keys.FileSpec{
		ID:             c.KeyID,
		Algorithm:      keys.Algorithm(c.KeyAlgorithm),
		PrivateKeyPath: c.PrivateKeyPath,
		PublicKeyPath:  c.PublicKeyPath,
	}
	if c.PreviousPublicKey != "" {
		cfg.Keys.VerifyOnly = []keys.FileSpec{{
			ID:            c.PreviousKeyID,
			Algorithm:     keys.Algorithm(c.PreviousKeyAlgorithm),
			PublicKeyPath: c.PreviousPublicKey,
		}}
	}

	cfg.Metrics.EnableLatencyHistograms = !c.DisableLatencyHistograms
	cfg.Audit.Enabled = !c.DisableAudit
	return cfg
}

func (c daemonConfig) slogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
