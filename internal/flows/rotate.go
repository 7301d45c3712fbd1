package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/cyclecore/jwt"
	"github.com/MrEthical07/cyclecore/revocation"
)

// RotateFailureKind classifies rotation failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureDecode
	RotateFailureExpired
	RotateFailureStoreUnavailable
	RotateFailureReplay
	RotateFailureIssue
)

// RotateResult carries the replacement pair or failure metadata. UserID and ConsumedID are set
// whenever the presented token decoded.
type RotateResult struct {
	Failure    RotateFailureKind
	Err        error
	UserID     string
	ConsumedID string
	Issued     IssueResult
}

// RotateDeps captures rotation dependencies.
type RotateDeps struct {
	Decode func(string, jwt.Kind) (*jwt.Claims, error)
	Store  revocation.Store
	Issue  IssueDeps
	Warn   func(string, ...any)
}

// RunRotate exchanges a refresh token for a new pair. The jti is consumed with one conditional
// write; whichever caller loses the write sees a replay. Any store failure rejects the exchange.
func RunRotate(ctx context.Context, refreshToken string, deps RotateDeps) RotateResult {
	claims, err := deps.Decode(refreshToken, jwt.KindRefresh)
	if err != nil {
		return RotateResult{Failure: RotateFailureDecode, Err: err}
	}

	result := RotateResult{UserID: claims.Subject, ConsumedID: claims.ID}

	alreadyUsed, err := deps.Store.MarkUsed(ctx, claims.ID, claims.ExpiresAt.Time)
	switch {
	case errors.Is(err, revocation.ErrExpired):
		result.Failure = RotateFailureExpired
		result.Err = err
		return result
	case err != nil:
		if deps.Warn != nil {
			deps.Warn("cyclecore: revocation store unavailable during rotate", "error", err)
		}
		result.Failure = RotateFailureStoreUnavailable
		result.Err = err
		return result
	case alreadyUsed:
		result.Failure = RotateFailureReplay
		result.Err = errors.New("refresh token already used")
		return result
	}

	issued := RunIssue(ctx, claims.Subject, deps.Issue)
	if issued.Failure != IssueFailureNone {
		result.Failure = RotateFailureIssue
		result.Err = issued.Err
		return result
	}

	result.Failure = RotateFailureNone
	result.Issued = issued
	return result
}
