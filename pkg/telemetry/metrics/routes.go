package metrics

import "github.com/prometheus/client_golang/prometheus"

// RouteMetrics tracks route configuration hot reload.
//
// Metrics:
//   - gatehouse_routes_reloads_total: route file reloads by result
//   - gatehouse_routes_certificate_loads_total: certificate loads by result
//   - gatehouse_routes_active: live routes
//   - gatehouse_routes_certificates: hosts with a registered certificate
type RouteMetrics struct {
	reloadsTotal     *prometheus.CounterVec
	certificateLoads *prometheus.CounterVec
	activeRoutes     prometheus.Gauge
	certificates     prometheus.Gauge
}

// NewRouteMetrics creates and registers route metrics.
func NewRouteMetrics(namespace string, registry prometheus.Registerer) *RouteMetrics {
	rm := &RouteMetrics{
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "routes",
				Name:      "reloads_total",
				Help:      "Total number of route file reloads by result",
			},
			[]string{"result"},
		),
		certificateLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "routes",
				Name:      "certificate_loads_total",
				Help:      "Total number of certificate load attempts by result",
			},
			[]string{"result"},
		),
		activeRoutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "routes",
			Name:      "active",
			Help:      "Number of routes currently accepting traffic",
		}),
		certificates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "routes",
			Name:      "certificates",
			Help:      "Number of hosts with a registered certificate",
		}),
	}

	registry.MustRegister(rm.reloadsTotal, rm.certificateLoads, rm.activeRoutes, rm.certificates)
	return rm
}
