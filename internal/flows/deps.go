package flows

// Deps groups flow dependency sets. The root engine builds this once at Build time.
type Deps struct {
	Issue  IssueDeps
	Verify VerifyDeps
	Rotate RotateDeps
	Login  LoginDeps
}
