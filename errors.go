package cyclecore

import (
	"errors"

	"github.com/MrEthical07/cyclecore/keys"
	"github.com/MrEthical07/cyclecore/stats"
)

var (
	// ErrUnauthorized is returned for every token or credential failure a client can cause:
	// malformed, badly signed, expired, wrong kind, replayed refresh tokens and bad passwords.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrKeyMaterial reports missing, malformed or undersized signing keys.
	ErrKeyMaterial = keys.ErrKeyMaterial
	// ErrRevocationStoreUnavailable is returned when the revocation store cannot confirm a
	// refresh token is unused. Rotation fails closed.
	ErrRevocationStoreUnavailable = errors.New("revocation store unavailable")
	// ErrLoginRateLimited is returned when the failed-login budget is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrLoginDisabled is returned by [Engine.Login] when no [UserProvider] is configured.
	ErrLoginDisabled = errors.New("login disabled")
	// ErrUserNotFound is returned by a [UserProvider] for unknown usernames.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidUserID is returned by [Engine.IssuePair] for an empty user id.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrInvalidObservation rejects a statistics observation that is out of range.
	ErrInvalidObservation = stats.ErrInvalidObservation
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
