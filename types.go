package cyclecore

import (
	"context"
	"time"
)

// TokenPair is the result of a successful issue, rotation or login.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type"`
}

// UserRecord is the account view [Engine.Login] needs.
type UserRecord struct {
	UserID       string
	Username     string
	PasswordHash string
	Disabled     bool
}

// UserProvider looks up accounts for [Engine.Login]. Implementations return [ErrUserNotFound]
// (possibly wrapped) for unknown usernames.
type UserProvider interface {
	GetUserByUsername(ctx context.Context, username string) (UserRecord, error)
}
