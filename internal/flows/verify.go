package flows

import "github.com/MrEthical07/cyclecore/jwt"

// VerifyFailureKind classifies access verification failures.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureDecode
)

// VerifyResult carries the authenticated subject or failure metadata.
type VerifyResult struct {
	Failure VerifyFailureKind
	Err     error
	UserID  string
	TokenID string
	Scope   []string
}

// VerifyDeps captures access verification dependencies.
type VerifyDeps struct {
	Decode func(string, jwt.Kind) (*jwt.Claims, error)
}

// RunVerify checks an access token. It is stateless and never consults the revocation store.
func RunVerify(token string, deps VerifyDeps) VerifyResult {
	claims, err := deps.Decode(token, jwt.KindAccess)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureDecode, Err: err}
	}
	return VerifyResult{
		Failure: VerifyFailureNone,
		UserID:  claims.Subject,
		TokenID: claims.ID,
		Scope:   claims.Scope,
	}
}
