package cyclecore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/cyclecore/internal/audit"
	"github.com/MrEthical07/cyclecore/internal/flows"
	"github.com/MrEthical07/cyclecore/internal/rate"
	"github.com/MrEthical07/cyclecore/jwt"
	"github.com/MrEthical07/cyclecore/keys"
	"github.com/MrEthical07/cyclecore/password"
	"github.com/MrEthical07/cyclecore/revocation"
	"github.com/MrEthical07/cyclecore/stats"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// dummyPassword is hashed once at Build so unknown usernames cost one argon2 verification.
const dummyPassword = "cyclecore-timing-equalizer"

// Builder assembles an [Engine]. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	keyProvider  *keys.Provider
	store        revocation.Store
	statsRepo    stats.Repository
	userProvider UserProvider
	auditSink    AuditSink
	logger       *slog.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for the revocation store and login throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithKeyProvider supplies key material directly instead of loading Config.Keys from disk.
func (b *Builder) WithKeyProvider(p *keys.Provider) *Builder {
	b.keyProvider = p
	return b
}

// WithRevocationStore overrides the store derived from WithRedis.
func (b *Builder) WithRevocationStore(s revocation.Store) *Builder {
	b.store = s
	return b
}

// WithStatsRepository sets where cycle statistics are persisted. Defaults to memory.
func (b *Builder) WithStatsRepository(repo stats.Repository) *Builder {
	b.statsRepo = repo
	return b
}

// WithUserProvider enables [Engine.Login].
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the audit destination. It takes effect only when Config.Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for operational warnings and security events.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock injects the time source for token timestamps, expiry checks and statistics dates.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the verify and rotate latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, loads keys and wires every component. Key problems are
// reported as [ErrKeyMaterial].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	provider := b.keyProvider
	if provider == nil {
		p, err := keys.Load(cfg.Keys)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	codec, err := jwt.NewCodec(jwt.Config{
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		Leeway:   cfg.JWT.Leeway,
		Now:      now,
	}, provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}

	store := b.store
	if store == nil {
		if b.redis != nil {
			store = revocation.NewRedisStore(b.redis,
				revocation.WithPrefix(cfg.Revocation.Prefix),
				revocation.WithTimeout(cfg.Revocation.Timeout),
				revocation.WithClock(now),
			)
		} else {
			logger.Warn("cyclecore: no redis client; refresh revocation is process-local")
			store = revocation.NewMemoryStore(now)
		}
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.Enabled && b.userProvider != nil {
		if b.redis == nil {
			return nil, errors.New("RateLimit requires redis client")
		}
		limiter = rate.New(b.redis, cfg.RateLimit.limiterConfig())
	}

	repo := b.statsRepo
	if repo == nil {
		repo = stats.NewMemoryRepository()
	}
	statsEngine, err := stats.NewEngine(cfg.Stats, repo, stats.WithClock(now), stats.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	var dispatcher *internalaudit.Dispatcher
	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = NewSlogSink(logger)
		}
		dispatcher = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Critical:   []string{auditEventRefreshReplay, auditEventRevocationDown},
		}, sink)
	}

	issue := flows.IssueDeps{
		Now:         now,
		NewTokenID:  newTokenID,
		Encode:      codec.Encode,
		AccessTTL:   cfg.JWT.AccessTTL,
		RefreshTTL:  cfg.JWT.RefreshTTL,
		AccessScope: cfg.JWT.AccessScope,
	}
	deps := flows.Deps{
		Issue:  issue,
		Verify: flows.VerifyDeps{Decode: codec.Decode},
		Rotate: flows.RotateDeps{
			Decode: codec.Decode,
			Store:  store,
			Issue:  issue,
			Warn:   logger.Warn,
		},
	}

	if b.userProvider != nil {
		dummy, err := hasher.Hash(dummyPassword)
		if err != nil {
			return nil, err
		}
		deps.Login = loginDeps(b.userProvider, hasher, limiter, dummy, issue, logger)
	}

	b.built = true

	return &Engine{
		config:  cfg,
		keys:    provider,
		codec:   codec,
		store:   store,
		limiter: limiter,
		hasher:  hasher,
		stats:   statsEngine,
		flows:   flows.New(deps),
		metrics: NewMetrics(cfg.Metrics),
		audit:   dispatcher,
		logger:  logger,
		now:     now,
	}, nil
}

func loginDeps(up UserProvider, hasher *password.Hasher, limiter *rate.Limiter, dummy string, issue flows.IssueDeps, logger *slog.Logger) flows.LoginDeps {
	deps := flows.LoginDeps{
		ClientIPFromContext: ClientIPFromContext,
		FindUser: func(ctx context.Context, username string) (flows.LoginUser, error) {
			rec, err := up.GetUserByUsername(ctx, username)
			if err != nil {
				return flows.LoginUser{}, err
			}
			return flows.LoginUser{
				UserID:       rec.UserID,
				Username:     rec.Username,
				PasswordHash: rec.PasswordHash,
				Disabled:     rec.Disabled,
			}, nil
		},
		UserNotFound:   ErrUserNotFound,
		VerifyPassword: hasher.Verify,
		DummyHash:      dummy,
		Issue:          issue,
		Warn:           logger.Warn,
	}
	if limiter != nil {
		deps.CheckRate = limiter.Check
		deps.RecordFailure = limiter.RecordFailure
		deps.ResetRate = limiter.Reset
	}
	return deps
}

func newTokenID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
