// Package rate throttles failed logins with Redis fixed-window counters.
//
// A failure increments a counter keyed by username (and optionally by client IP); the first
// increment in a window sets the TTL. Once a counter passes the budget every attempt is refused
// until the window expires, whether or not the password would have been right.
//
// Keys: "<prefix>:u:<username>" and "<prefix>:ip:<ip>".
package rate
