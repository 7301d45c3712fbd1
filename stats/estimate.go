package stats

import "math"

// Estimate is one exponentially weighted running value.
type Estimate struct {
	Count int64   `json:"count"`
	Value float64 `json:"value"`
	Alpha float64 `json:"alpha"`
}

// Known reports whether at least one observation has been folded in.
func (e Estimate) Known() bool {
	return e.Count > 0
}

// Fold returns the estimate after observing x. The first observation seeds the value exactly.
func (e Estimate) Fold(x float64) Estimate {
	if e.Count == 0 {
		return Estimate{Count: 1, Value: x, Alpha: e.Alpha}
	}
	return Estimate{
		Count: e.Count + 1,
		Value: e.Alpha*x + (1-e.Alpha)*e.Value,
		Alpha: e.Alpha,
	}
}

// Days rounds the estimate to whole days.
func (e Estimate) Days() int {
	return int(math.Round(e.Value))
}

// AlphaFromSpan converts an EWM span (in observations) to a smoothing factor, 2/(span+1).
func AlphaFromSpan(span int) float64 {
	if span < 1 {
		span = 1
	}
	return 2 / float64(span+1)
}
