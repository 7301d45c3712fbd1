package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/cyclecore/jwt"
)

// IssueFailureKind classifies issue flow failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureInvalidUser
	IssueFailureTokenID
	IssueFailureEncode
)

// IssueResult carries a freshly minted pair or failure metadata.
type IssueResult struct {
	Failure IssueFailureKind
	Err     error

	UserID           string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	RefreshID        string
}

// IssueDeps captures issue flow dependencies.
type IssueDeps struct {
	Now         func() time.Time
	NewTokenID  func() (string, error)
	Encode      func(jwt.Claims) (string, error)
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	AccessScope []string
}

// RunIssue mints an access and a refresh token for an already-authenticated user. Each token
// gets its own jti.
func RunIssue(_ context.Context, userID string, deps IssueDeps) IssueResult {
	if userID == "" {
		return IssueResult{Failure: IssueFailureInvalidUser, Err: errors.New("empty user id")}
	}

	now := deps.Now()

	accessID, err := deps.NewTokenID()
	if err != nil {
		return IssueResult{Failure: IssueFailureTokenID, Err: err, UserID: userID}
	}
	refreshID, err := deps.NewTokenID()
	if err != nil {
		return IssueResult{Failure: IssueFailureTokenID, Err: err, UserID: userID}
	}

	accessClaims := jwt.NewClaims(jwt.KindAccess, userID, accessID, now, deps.AccessTTL, deps.AccessScope...)
	access, err := deps.Encode(accessClaims)
	if err != nil {
		return IssueResult{Failure: IssueFailureEncode, Err: err, UserID: userID}
	}

	refreshClaims := jwt.NewClaims(jwt.KindRefresh, userID, refreshID, now, deps.RefreshTTL)
	refresh, err := deps.Encode(refreshClaims)
	if err != nil {
		return IssueResult{Failure: IssueFailureEncode, Err: err, UserID: userID}
	}

	return IssueResult{
		Failure:          IssueFailureNone,
		UserID:           userID,
		AccessToken:      access,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
		RefreshID:        refreshID,
	}
}
