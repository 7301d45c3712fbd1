package prometheus

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/cyclecore"
	"github.com/MrEthical07/cyclecore/metrics/export/internaldefs"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ErrNilSource is returned when no metrics source is given.
var ErrNilSource = errors.New("nil metrics source")

type metricsSource interface {
	MetricsSnapshot() cyclecore.MetricsSnapshot
	AuditDropped() uint64
}

type counterDesc struct {
	id   cyclecore.MetricID
	desc *prom.Desc
}

// Collector adapts engine metrics to the Prometheus data model.
type Collector struct {
	source       metricsSource
	counters     []counterDesc
	histograms   []counterDesc
	auditDropped *prom.Desc
}

// NewCollector builds a collector reading from source, usually a [*cyclecore.Engine].
func NewCollector(source metricsSource) (*Collector, error) {
	if source == nil {
		return nil, ErrNilSource
	}

	c := &Collector{
		source:       source,
		counters:     make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms:   make([]counterDesc, 0, len(internaldefs.HistogramDefs)),
		auditDropped: prom.NewDesc(internaldefs.AuditDroppedName, "Dropped audit events due to dispatcher backpressure.", nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c, nil
}

// Register creates a collector for source and registers it with reg.
func Register(reg prom.Registerer, source metricsSource) (*Collector, error) {
	c, err := NewCollector(source)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Describe implements prom.Collector.
func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	for _, hd := range c.histograms {
		ch <- hd.desc
	}
	ch <- c.auditDropped
}

// Collect implements prom.Collector. Counters absent from the snapshot, as when metrics are
// disabled, are not published.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	snap := c.source.MetricsSnapshot()

	for _, cd := range c.counters {
		v, ok := snap.Counters[cd.id]
		if !ok {
			continue
		}
		ch <- prom.MustNewConstMetric(cd.desc, prom.CounterValue, float64(v))
	}

	for _, hd := range c.histograms {
		raw, ok := snap.Histograms[hd.id]
		if !ok {
			continue
		}
		buckets := internaldefs.NormalizeBuckets(raw)
		cumulative := internaldefs.CumulativeBuckets(buckets)

		upper := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, bound := range internaldefs.HistogramUpperBounds {
			upper[bound] = cumulative[i]
		}
		ch <- prom.MustNewConstHistogram(hd.desc, cumulative[len(cumulative)-1], internaldefs.ApproxSum(buckets), upper)
	}

	ch <- prom.MustNewConstMetric(c.auditDropped, prom.CounterValue, float64(c.source.AuditDropped()))
}

// Handler serves gatherer in the Prometheus exposition format.
func Handler(gatherer prom.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
