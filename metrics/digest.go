package metrics

import (
	"math"
	"sync"

	"github.com/caio/go-tdigest/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// LatencyDigest tracks an online percentile digest for one operation's
// latency, sampled in seconds. github.com/caio/go-tdigest/v4 is the same
// library the teacher's aggregation iterators use for streaming percentile
// estimation (iterator/multi_field_aggregator.go); here it estimates
// latency percentiles instead of value percentiles.
type LatencyDigest struct {
	mu sync.Mutex
	td *tdigest.TDigest
}

// NewLatencyDigest allocates an empty digest.
func NewLatencyDigest() (*LatencyDigest, error) {
	td, err := tdigest.New()
	if err != nil {
		return nil, err
	}
	return &LatencyDigest{td: td}, nil
}

// Observe records one latency sample, in seconds.
func (d *LatencyDigest) Observe(seconds float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.td.Add(seconds)
}

// Quantile returns the estimated value at quantile q (0..1). Zero on an
// empty digest.
func (d *LatencyDigest) Quantile(q float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.td.Quantile(q)
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// Collectors returns prometheus.Collectors reporting this digest's p50/p90/p99
// under name{quantile="..."}, sampled lazily on each /metrics scrape.
func (d *LatencyDigest) Collectors(name, help string) []prometheus.Collector {
	quantiles := []struct {
		label string
		q     float64
	}{
		{"0.5", 0.5},
		{"0.9", 0.9},
		{"0.99", 0.99},
	}
	cols := make([]prometheus.Collector, 0, len(quantiles))
	for _, qq := range quantiles {
		q := qq.q
		cols = append(cols, prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        name,
				Help:        help,
				ConstLabels: prometheus.Labels{"quantile": qq.label},
			},
			func() float64 { return d.Quantile(q) },
		))
	}
	return cols
}
