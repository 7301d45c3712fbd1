package flows

import (
	"context"
	"errors"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureDisabled
	LoginFailureUserLookup
	LoginFailureIssue
)

// LoginUser is the flow-local view of a stored account.
type LoginUser struct {
	UserID       string
	Username     string
	PasswordHash string
	Disabled     bool
}

// LoginResult carries the issued pair or failure metadata. Reason is a short machine label for
// audit records and is never shown to clients.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	Reason  string
	UserID  string
	Issued  IssueResult
}

// LoginDeps captures login dependencies. The rate callbacks are optional.
type LoginDeps struct {
	ClientIPFromContext func(context.Context) string

	CheckRate     func(ctx context.Context, username, ip string) error
	RecordFailure func(ctx context.Context, username, ip string) error
	ResetRate     func(ctx context.Context, username, ip string) error

	FindUser       func(ctx context.Context, username string) (LoginUser, error)
	UserNotFound   error
	VerifyPassword func(password, encodedHash string) (bool, error)
	// DummyHash is verified against when the user does not exist so unknown usernames cost the
	// same as wrong passwords.
	DummyHash string

	Issue IssueDeps
	Warn  func(string, ...any)
}

// RunLogin authenticates username/password and issues a pair for the account.
func RunLogin(ctx context.Context, username, password string, deps LoginDeps) LoginResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	ip := ""
	if deps.ClientIPFromContext != nil {
		ip = deps.ClientIPFromContext(ctx)
	}

	if deps.CheckRate != nil {
		if err := deps.CheckRate(ctx, username, ip); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err, Reason: "rate_limited"}
		}
	}

	fail := func(userID, reason string, err error) LoginResult {
		if deps.RecordFailure != nil {
			if rerr := deps.RecordFailure(ctx, username, ip); rerr != nil {
				return LoginResult{Failure: LoginFailureRateLimited, Err: rerr, Reason: "rate_limited", UserID: userID}
			}
		}
		return LoginResult{Failure: LoginFailureInvalidCredentials, Err: err, Reason: reason, UserID: userID}
	}

	if username == "" || password == "" {
		return fail("", "empty_credentials", errors.New("empty credentials"))
	}

	user, err := deps.FindUser(ctx, username)
	if err != nil {
		if deps.UserNotFound != nil && !errors.Is(err, deps.UserNotFound) {
			return LoginResult{Failure: LoginFailureUserLookup, Err: err, Reason: "user_lookup"}
		}
		if deps.DummyHash != "" {
			_, _ = deps.VerifyPassword(password, deps.DummyHash)
		}
		return fail("", "user_not_found", err)
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		if err == nil {
			err = errors.New("password mismatch")
		}
		return fail(user.UserID, "password_mismatch", err)
	}

	if user.Disabled {
		return LoginResult{
			Failure: LoginFailureDisabled,
			Err:     errors.New("account disabled"),
			Reason:  "account_disabled",
			UserID:  user.UserID,
		}
	}

	if deps.ResetRate != nil {
		if err := deps.ResetRate(ctx, username, ip); err != nil {
			deps.Warn("cyclecore: login limiter reset failed", "error", err)
		}
	}

	issued := RunIssue(ctx, user.UserID, deps.Issue)
	if issued.Failure != IssueFailureNone {
		return LoginResult{Failure: LoginFailureIssue, Err: issued.Err, Reason: "issue", UserID: user.UserID, Issued: issued}
	}

	return LoginResult{Failure: LoginFailureNone, UserID: user.UserID, Issued: issued}
}
