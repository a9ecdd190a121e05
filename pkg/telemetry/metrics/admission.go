package metrics

import "github.com/prometheus/client_golang/prometheus"

// AdmissionMetrics tracks admission control.
//
// Metrics:
//   - gatehouse_admission_decisions_total: decisions by result and reason
//   - gatehouse_admission_tracked_clients: addresses with request statistics
//   - gatehouse_admission_blocked_clients: addresses currently blocked
type AdmissionMetrics struct {
	decisionsTotal *prometheus.CounterVec
	trackedClients prometheus.Gauge
	blockedClients prometheus.Gauge
}

// NewAdmissionMetrics creates and registers admission metrics.
func NewAdmissionMetrics(namespace string, registry prometheus.Registerer) *AdmissionMetrics {
	am := &AdmissionMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "decisions_total",
				Help:      "Total number of admission decisions",
			},
			[]string{"result", "reason"},
		),
		trackedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "tracked_clients",
			Help:      "Number of client addresses with retained request statistics",
		}),
		blockedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "blocked_clients",
			Help:      "Number of client addresses currently blocked",
		}),
	}

	registry.MustRegister(am.decisionsTotal, am.trackedClients, am.blockedClients)
	return am
}
