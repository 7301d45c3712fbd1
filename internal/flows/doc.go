// Package flows contains the orchestration behind every token operation of the Engine.
//
// Each Run* function takes a typed dependency struct and returns a result carrying a
// FailureKind instead of a public error. The root package maps kinds to its own sentinels,
// which keeps the opaque-error policy in one place and lets these flows be tested with plain
// function fakes.
//
// Flows hold no state between calls and never import the root package.
package flows
