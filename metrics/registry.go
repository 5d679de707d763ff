// Package metrics is the ambient self-monitoring layer: a prometheus
// registry, an online latency digest for the facade's hot paths, host
// resource sampling via gopsutil, and the debug HTTP surface (pprof,
// statsviz, /metrics) that exposes all of it. Grounded on the teacher's
// server/metric_server.go and server/metrics.go, which did the same job
// over the global expvar namespace instead of a prometheus registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewRegistry builds the process-wide registry every collector in this
// binary registers against. Unlike prometheus.DefaultRegisterer, a private
// registry lets tests construct their own facade/bus without polluting (or
// panicking on duplicate registration against) the global one.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	reg.MustRegister(prometheus.NewGoCollector())
	return reg
}
