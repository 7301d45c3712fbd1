// Package keys loads and holds the asymmetric signing material used by the token codec.
//
// Key pairs are immutable after load and safe for unlimited concurrent readers. A [Provider]
// carries exactly one active generation (used for signing) plus any number of verify-only
// generations so tokens minted before a key rotation keep verifying until they expire.
//
// # What this package must NOT do
//
//   - Know about token claims, kinds or expiry.
//   - Perform I/O after [Load] returns.
package keys
