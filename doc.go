// Package cyclecore issues and verifies asymmetric JWT access/refresh pairs and maintains
// per-user cycle statistics.
//
// Refresh tokens are single use: [Engine.Rotate] consumes the token id in the revocation store with
// one conditional write before a new pair is minted, so two concurrent rotations of the same token
// produce exactly one winner. Every token failure a client can cause surfaces as the opaque
// [ErrUnauthorized].
//
// Engine methods are safe for concurrent use after [Builder.Build]. Statistics updates for one
// user are serialized; distinct users never contend.
//
// # Architecture boundaries
//
// cyclecore is the public surface. Flow orchestration, login throttling, audit dispatch and
// storage live under internal/ and are never exported. Key material, the token codec, the
// revocation store and the statistics engine are exported packages that can be used on their own.
package cyclecore
