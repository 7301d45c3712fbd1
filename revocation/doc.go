// Package revocation records refresh-token identifiers (jti) that have already been exchanged,
// so each refresh token is good for exactly one rotation.
//
// The only write is a conditional insert ("store if absent, report whether it existed") with a
// TTL aligned to the token's own expiry. Records are never deleted explicitly; they age out once
// the token they guard could no longer verify anyway.
package revocation
