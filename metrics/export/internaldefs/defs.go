package internaldefs

import (
	"github.com/MrEthical07/cyclecore"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   cyclecore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   cyclecore.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "cyclecore_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: cyclecore.MetricIssueSuccess, Name: "cyclecore_issue_success_total", Help: "Token pairs issued."},
	{ID: cyclecore.MetricIssueFailure, Name: "cyclecore_issue_failure_total", Help: "Token pair issue failures."},
	{ID: cyclecore.MetricVerifySuccess, Name: "cyclecore_verify_success_total", Help: "Access tokens accepted."},
	{ID: cyclecore.MetricVerifyFailure, Name: "cyclecore_verify_failure_total", Help: "Access tokens rejected."},
	{ID: cyclecore.MetricRotateSuccess, Name: "cyclecore_rotate_success_total", Help: "Successful refresh rotations."},
	{ID: cyclecore.MetricRotateFailure, Name: "cyclecore_rotate_failure_total", Help: "Rejected refresh rotations."},
	{ID: cyclecore.MetricReplayDetected, Name: "cyclecore_refresh_replay_detected_total", Help: "Refresh tokens presented after consumption."},
	{ID: cyclecore.MetricRevocationUnavailable, Name: "cyclecore_revocation_unavailable_total", Help: "Rotations rejected because the revocation store was unavailable."},
	{ID: cyclecore.MetricLoginSuccess, Name: "cyclecore_login_success_total", Help: "Successful logins."},
	{ID: cyclecore.MetricLoginFailure, Name: "cyclecore_login_failure_total", Help: "Failed logins."},
	{ID: cyclecore.MetricLoginRateLimited, Name: "cyclecore_login_rate_limited_total", Help: "Logins refused by the failure throttle."},
	{ID: cyclecore.MetricObservationRecorded, Name: "cyclecore_observation_recorded_total", Help: "Cycle statistics observations folded."},
	{ID: cyclecore.MetricObservationRejected, Name: "cyclecore_observation_rejected_total", Help: "Cycle statistics observations rejected as invalid."},
}

var HistogramDefs = []HistogramDef{
	{ID: cyclecore.MetricVerifyLatency, Name: "cyclecore_verify_latency_seconds", Help: "Access token verification latency."},
	{ID: cyclecore.MetricRotateLatency, Name: "cyclecore_rotate_latency_seconds", Help: "Refresh rotation latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket for exporters without native histograms.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies up to eight per-bucket counts into a fixed array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// ApproxSum estimates the histogram sum from bucket midpoints; the engine keeps counts only.
// The +Inf bucket is valued at its lower bound.
func ApproxSum(raw [8]uint64) float64 {
	var sum, lower float64
	for i, n := range raw {
		mid := lower
		if i < len(HistogramUpperBounds) {
			mid = (lower + HistogramUpperBounds[i]) / 2
			lower = HistogramUpperBounds[i]
		}
		sum += mid * float64(n)
	}
	return sum
}
