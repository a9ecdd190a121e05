package metrics

import (
	"strconv"
	"sync"
	"time"

	"mercator-hq/gatehouse/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// maxHostLabels bounds the number of distinct host label values. Hosts seen
// after the limit is reached are reported as overflowHost.
const (
	maxHostLabels = 10000
	overflowHost  = "other"
)

// Collector owns the gateway's Prometheus metrics. It implements the
// recorder interfaces of the forwarding pipeline, the route configuration
// engine and admission control, so each component reports through the same
// registry.
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	proxyMetrics     *ProxyMetrics
	routeMetrics     *RouteMetrics
	admissionMetrics *AdmissionMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector registering into registry. If registry
// is nil a fresh one is created; Go runtime and process collectors are
// added to it.
//
// Example:
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		proxyMetrics:       NewProxyMetrics(cfg.Namespace, registry),
		routeMetrics:       NewRouteMetrics(cfg.Namespace, registry),
		admissionMetrics:   NewAdmissionMetrics(cfg.Namespace, registry),
		cardinalityLimiter: NewCardinalityLimiter(maxHostLabels),
	}
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) hostLabel(host string) string {
	if c.cardinalityLimiter.Allow(host) {
		return host
	}
	return overflowHost
}

// RecordProxyRequest records a forwarded request by host and status code.
func (c *Collector) RecordProxyRequest(host string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	host = c.hostLabel(host)
	c.proxyMetrics.requestsTotal.WithLabelValues(host, strconv.Itoa(status)).Inc()
	c.proxyMetrics.requestDuration.WithLabelValues(host).Observe(duration.Seconds())
}

// RecordUpstreamError counts a failed backend exchange.
func (c *Collector) RecordUpstreamError(host string) {
	if !c.config.Enabled {
		return
	}
	c.proxyMetrics.upstreamErrors.WithLabelValues(c.hostLabel(host)).Inc()
}

// RecordRouteReload counts a route file reload by result.
func (c *Collector) RecordRouteReload(result string) {
	if !c.config.Enabled {
		return
	}
	c.routeMetrics.reloadsTotal.WithLabelValues(result).Inc()
}

// RecordCertificateLoad counts a certificate load attempt by result.
func (c *Collector) RecordCertificateLoad(result string) {
	if !c.config.Enabled {
		return
	}
	c.routeMetrics.certificateLoads.WithLabelValues(result).Inc()
}

// SetActiveRoutes sets the number of live routes.
func (c *Collector) SetActiveRoutes(n int) {
	if !c.config.Enabled {
		return
	}
	c.routeMetrics.activeRoutes.Set(float64(n))
}

// SetCertificates sets the number of hosts with a registered certificate.
func (c *Collector) SetCertificates(n int) {
	if !c.config.Enabled {
		return
	}
	c.routeMetrics.certificates.Set(float64(n))
}

// RecordAdmission counts an admission decision.
func (c *Collector) RecordAdmission(result, reason string) {
	if !c.config.Enabled {
		return
	}
	c.admissionMetrics.decisionsTotal.WithLabelValues(result, reason).Inc()
}

// SetTrackedClients sets the number of client addresses with statistics.
func (c *Collector) SetTrackedClients(n int) {
	if !c.config.Enabled {
		return
	}
	c.admissionMetrics.trackedClients.Set(float64(n))
}

// SetBlockedClients sets the number of blocked client addresses.
func (c *Collector) SetBlockedClients(n int) {
	if !c.config.Enabled {
		return
	}
	c.admissionMetrics.blockedClients.Set(float64(n))
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label value is allowed. Returns true if the value
// already exists or if the limit has not been reached yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the number of tracked label values.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
