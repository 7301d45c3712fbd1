package flows

import "context"

// Service is the flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Verify.Decode != nil && s.deps.Rotate.Store != nil && s.deps.Issue.Encode != nil
}

func (s Service) Issue(ctx context.Context, userID string) IssueResult {
	return RunIssue(ctx, userID, s.deps.Issue)
}

func (s Service) Verify(token string) VerifyResult {
	return RunVerify(token, s.deps.Verify)
}

func (s Service) Rotate(ctx context.Context, refreshToken string) RotateResult {
	return RunRotate(ctx, refreshToken, s.deps.Rotate)
}

// LoginEnabled reports whether a user source was configured.
func (s Service) LoginEnabled() bool {
	return s.deps.Login.FindUser != nil && s.deps.Login.VerifyPassword != nil
}

func (s Service) Login(ctx context.Context, username, password string) LoginResult {
	return RunLogin(ctx, username, password, s.deps.Login)
}
