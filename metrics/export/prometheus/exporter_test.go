package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/cyclecore"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot cyclecore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() cyclecore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }

func TestCollectorSkipsCountersWhenMetricsDisabled(t *testing.T) {
	c, err := NewCollector(fakeSource{snapshot: cyclecore.MetricsSnapshot{}})
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	if got := testutil.CollectAndCount(c); got != 1 {
		t.Fatalf("expected only the audit-dropped series, got %d", got)
	}
}

func TestCollectorPublishesCountersAndHistogram(t *testing.T) {
	src := fakeSource{
		snapshot: cyclecore.MetricsSnapshot{
			Counters: map[cyclecore.MetricID]uint64{
				cyclecore.MetricRotateSuccess:  4,
				cyclecore.MetricReplayDetected: 1,
			},
			Histograms: map[cyclecore.MetricID][]uint64{
				cyclecore.MetricVerifyLatency: {2, 1, 0, 0, 0, 0, 0, 1},
			},
		},
		dropped: 3,
	}

	reg := prom.NewRegistry()
	if _, err := Register(reg, src); err != nil {
		t.Fatalf("Register: %v", err)
	}

	expected := `
# HELP cyclecore_refresh_replay_detected_total Refresh tokens presented after consumption.
# TYPE cyclecore_refresh_replay_detected_total counter
cyclecore_refresh_replay_detected_total 1
# HELP cyclecore_rotate_success_total Successful refresh rotations.
# TYPE cyclecore_rotate_success_total counter
cyclecore_rotate_success_total 4
# HELP cyclecore_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE cyclecore_audit_dropped_total counter
cyclecore_audit_dropped_total 3
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"cyclecore_refresh_replay_detected_total",
		"cyclecore_rotate_success_total",
		"cyclecore_audit_dropped_total",
	)
	if err != nil {
		t.Fatalf("unexpected exposition: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, mf := range families {
		if mf.GetName() != "cyclecore_verify_latency_seconds" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 4 {
			t.Fatalf("expected 4 samples, got %d", h.GetSampleCount())
		}
		if got := h.GetBucket()[1].GetCumulativeCount(); got != 3 {
			t.Fatalf("expected cumulative 3 at 10ms, got %d", got)
		}
	}
	if !found {
		t.Fatal("latency histogram not published")
	}
}

func TestHandlerServesRegisteredEngine(t *testing.T) {
	reg := prom.NewRegistry()
	src := fakeSource{snapshot: cyclecore.MetricsSnapshot{
		Counters: map[cyclecore.MetricID]uint64{cyclecore.MetricLoginSuccess: 2},
	}}
	if _, err := Register(reg, src); err != nil {
		t.Fatalf("Register: %v", err)
	}

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := rec.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "cyclecore_login_success_total 2") {
		t.Fatalf("missing login counter in %s", body)
	}
}

func TestNewCollectorRejectsNilSource(t *testing.T) {
	if _, err := NewCollector(nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
}
