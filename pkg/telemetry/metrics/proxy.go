package metrics

import "github.com/prometheus/client_golang/prometheus"

// ProxyMetrics tracks forwarded requests.
//
// Metrics:
//   - gatehouse_proxy_requests_total: requests by host and status code
//   - gatehouse_proxy_request_duration_seconds: time to response end by host
//   - gatehouse_proxy_upstream_errors_total: failed backend exchanges by host
type ProxyMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
}

// NewProxyMetrics creates and registers proxy metrics.
func NewProxyMetrics(namespace string, registry prometheus.Registerer) *ProxyMetrics {
	pm := &ProxyMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Total number of forwarded requests",
			},
			[]string{"host", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "request_duration_seconds",
				Help:      "Duration of forwarded requests including body streaming",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"host"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "upstream_errors_total",
				Help:      "Total number of backend exchanges that failed",
			},
			[]string{"host"},
		),
	}

	registry.MustRegister(pm.requestsTotal, pm.requestDuration, pm.upstreamErrors)
	return pm
}
