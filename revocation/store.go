package revocation

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps every backend failure. Callers must fail closed on it.
	ErrUnavailable = errors.New("revocation store unavailable")
	// ErrExpired is returned by MarkUsed when the token is already past its expiry. Nothing is
	// stored because such a token can never verify again.
	ErrExpired = errors.New("revocation record already expired")
)

// Store is the contract between the token service and the key-value backend.
//
// MarkUsed must be linearizable per jti: of any number of concurrent calls for one jti exactly
// one observes alreadyUsed == false.
type Store interface {
	MarkUsed(ctx context.Context, jti string, expiry time.Time) (alreadyUsed bool, err error)
	IsUsed(ctx context.Context, jti string) (bool, error)
}

func remainingTTL(expiry, now time.Time) time.Duration {
	ttl := expiry.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
