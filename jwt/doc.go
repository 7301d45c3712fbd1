// Package jwt encodes, signs, decodes and verifies cyclecore access and refresh tokens.
//
// Tokens are standard compact JWS strings. The header records the signing algorithm and the key
// generation ("kid") so a key rotation does not invalidate tokens minted under the previous
// generation; verification always uses the generation the token names and fails explicitly when
// that generation is unknown.
//
// Every failure is one of [ErrTokenMalformed], [ErrTokenSignature], [ErrTokenExpired] or
// [ErrTokenKindMismatch]. Callers facing untrusted clients must collapse these into a single
// opaque error; the distinction exists for diagnostics only.
package jwt
