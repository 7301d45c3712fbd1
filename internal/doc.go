// Package internal holds implementation packages that are private to cyclecore.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - flows: pure-function orchestration for issue, verify, rotate and login
//   - httpapi: the JSON routes served by cmd/cycled
//   - rate: Redis-backed failed-login throttling
//   - storage: Postgres connection, goose migrations and the users table
package internal
