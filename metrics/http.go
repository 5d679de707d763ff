package metrics

import "github.com/prometheus/client_golang/prometheus"

// HTTPMetrics is the REST API's request-rate/latency instrumentation,
// grounded on the promauto request-metrics pattern the pack's
// tomtom215-cartographus repo uses (internal/metrics/metrics.go's
// APIRequestsTotal/APIRequestDuration), adapted to a private registry
// instead of the default global one.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics builds and registers the API's request metrics against reg.
func NewHTTPMetrics(reg *prometheus.Registry) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorhub_http_requests_total",
			Help: "Total REST API requests handled, by method and status.",
		}, []string{"method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sensorhub_http_request_duration_seconds",
			Help:    "REST API request duration in seconds, by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDuration)
	return m
}
