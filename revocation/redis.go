package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTimeout bounds every Redis round-trip.
	DefaultTimeout = 250 * time.Millisecond
	// DefaultPrefix namespaces revocation keys.
	DefaultPrefix = "crv"
)

// RedisStore keeps revocation records as plain keys with a PX expiry.
type RedisStore struct {
	redis   redis.UniversalClient
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

// RedisOption customizes a [RedisStore].
type RedisOption func(*RedisStore)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock injects the time source used to derive TTLs.
func WithClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRedisStore creates a revocation store on top of an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		redis:   client,
		prefix:  DefaultPrefix,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(jti string) string {
	return s.prefix + ":" + jti
}

// MarkUsed stores jti with TTL expiry-now using SET NX, so the check and the mark are one
// atomic command.
func (s *RedisStore) MarkUsed(ctx context.Context, jti string, expiry time.Time) (bool, error) {
	ttl := remainingTTL(expiry, s.now())
	if ttl <= 0 {
		return false, ErrExpired
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stored, err := s.redis.SetNX(ctx, s.key(jti), expiry.Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return !stored, nil
}

// IsUsed reports whether jti has already been exchanged.
func (s *RedisStore) IsUsed(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.redis.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return n > 0, nil
}

// Ping checks backend reachability within the store deadline.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
