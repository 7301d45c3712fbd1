// Package stats maintains per-user running estimates of period length, cycle length, luteal
// length and basal body temperature, and derives fertile-window and next-period estimates from
// them.
//
// Every metric is an exponential moving average updated in O(1) per observation; no event
// history is replayed. The first observation seeds an estimate exactly. Updates for one user are
// serialized inside the [Engine]; updates for different users never share a lock.
//
// Temperatures are Celsius. Callers convert before calling; the engine performs no unit
// conversion and rejects readings outside a plausible body-temperature range.
package stats
