// Package middleware adapts a cyclecore engine to net/http.
//
//   - [Guard] reads the bearer token, calls VerifyAccess and stores the user id in the request
//     context. Every rejection is a bare 401.
//   - [ClientIP] records the caller address with [cyclecore.WithClientIP] for login throttling
//     and audit records.
//   - [Throttle] is a per-client token bucket for unauthenticated endpoints.
//   - [NewLoggingMiddleware] writes one structured log line per request.
//
// This package never parses tokens itself.
package middleware
