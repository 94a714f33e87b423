package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector bridges an Aggregator into a Prometheus registry. Every
// aggregator entry is exported as an untyped gauge with the name
// sanitized to the Prometheus charset and prefixed "flowd_".
type Collector struct {
	agg *Aggregator
}

// NewCollector wraps the aggregator for Prometheus scraping.
func NewCollector(agg *Aggregator) *Collector {
	return &Collector{agg: agg}
}

// Compile-time interface check.
var _ prometheus.Collector = (*Collector)(nil)

// Describe sends nothing: the metric set is dynamic, so the collector is
// unchecked.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect walks the aggregator snapshot.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, v := range c.agg.Snapshot() {
		f, ok := v.(float64)
		if !ok {
			continue
		}
		desc := prometheus.NewDesc(promName(name), "flowd aggregated metric", nil, nil)
		m, err := prometheus.NewConstMetric(desc, prometheus.UntypedValue, f)
		if err != nil {
			continue
		}
		ch <- m
	}
}

// promName maps a dotted metric name ("hooks.llm:call.executions") to a
// legal Prometheus identifier.
func promName(name string) string {
	var b strings.Builder
	b.WriteString("flowd_")
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
