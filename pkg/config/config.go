package config

import (
	"time"

	"mercator-hq/gatehouse/pkg/security/auth"
	gwtls "mercator-hq/gatehouse/pkg/security/tls"
)

// Config is the root configuration structure for Gatehouse.
type Config struct {
	// Gateway contains listener configuration.
	Gateway GatewayConfig `yaml:"gateway"`

	// Routes locates the route definition directory and tunes hot reload.
	Routes RoutesConfig `yaml:"routes"`

	// Upstream configures the transport used to reach backends.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Admission configures per-IP admission control.
	Admission AdmissionConfig `yaml:"admission"`

	// Admin configures the loopback administrative surface.
	Admin AdminConfig `yaml:"admin"`

	// Secrets configures resolution of "${secret:name}" references.
	Secrets SecretsConfig `yaml:"secrets"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// GatewayConfig contains configuration for the HTTP and HTTPS listeners.
type GatewayConfig struct {
	// HTTPAddress is the plain HTTP listen address. Empty disables it.
	// Default: ":80"
	HTTPAddress string `yaml:"http_address"`

	// HTTPSAddress is the TLS listen address. Empty disables it.
	// Default: ":443"
	HTTPSAddress string `yaml:"https_address"`

	// ReadHeaderTimeout bounds reading request headers. Bodies and responses
	// are never bounded so long-lived streams survive.
	// Default: 30s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// TLS holds listener TLS settings. Certificates come from routes.
	TLS gwtls.ServerConfig `yaml:"tls"`
}

// RoutesConfig contains configuration for the route directory.
type RoutesConfig struct {
	// ConfigPath is the directory holding one "{id}.json" file per route.
	// Default: "./routes"
	ConfigPath string `yaml:"config_path"`

	// ConfigSettleDelay is how long a route file must be quiet before it is
	// re-read.
	// Default: 100ms
	ConfigSettleDelay time.Duration `yaml:"config_settle_delay"`

	// CertificateSettleDelay is how long a certificate directory must be
	// quiet before certificates are re-resolved.
	// Default: 500ms
	CertificateSettleDelay time.Duration `yaml:"certificate_settle_delay"`
}

// UpstreamConfig configures the backend transport.
type UpstreamConfig struct {
	// DialTimeout bounds establishing a backend connection. Requests
	// themselves have no timeout.
	// Default: 30s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// InsecureSkipVerify disables verification of https backend
	// certificates.
	// Default: false
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// MaxIdleConnsPerHost caps pooled idle connections per backend.
	// Default: 32
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`
}

// AdmissionConfig configures the per-IP admission-control heuristic.
type AdmissionConfig struct {
	// Enabled controls whether admission control runs.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// MaxRequestsPerSecond is the burst threshold.
	// Default: 10
	MaxRequestsPerSecond int `yaml:"max_requests_per_second"`

	// MaxRequestsPerMinute is the sustained threshold.
	// Default: 100
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute"`

	// TimeWindowMinutes is how long request timestamps are retained.
	// Default: 5
	TimeWindowMinutes int `yaml:"time_window_minutes"`

	// BlockDurationMinutes is how long a flagged IP stays blocked.
	// Default: 30
	BlockDurationMinutes int `yaml:"block_duration_minutes"`

	// SweepSchedule is the cron schedule for pruning idle IP statistics.
	// Default: "@every 5m"
	SweepSchedule string `yaml:"sweep_schedule"`

	// PersistPath is an optional SQLite file that keeps active blocks
	// across restarts. Empty keeps blocks in memory only.
	PersistPath string `yaml:"persist_path"`
}

// TimeWindow returns TimeWindowMinutes as a duration.
func (c AdmissionConfig) TimeWindow() time.Duration {
	return time.Duration(c.TimeWindowMinutes) * time.Minute
}

// BlockDuration returns BlockDurationMinutes as a duration.
func (c AdmissionConfig) BlockDuration() time.Duration {
	return time.Duration(c.BlockDurationMinutes) * time.Minute
}

// AdminConfig configures the administrative surface served to loopback
// hosts without a route.
type AdminConfig struct {
	// Enabled controls whether the admin API is served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// APIKeys, when set, must be presented on /api requests as a bearer
	// token or X-API-Key header. Keys may be secret references.
	APIKeys []auth.APIKey `yaml:"api_keys"`
}

// SecretsConfig configures where secret references are resolved. The
// environment is always consulted first.
type SecretsConfig struct {
	// EnvPrefix prefixes the environment variable of each secret.
	// Default: "GATEHOUSE_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Directory holds one file per secret. Empty disables file secrets.
	Directory string `yaml:"directory"`

	// Watch forgets cached file secrets when the directory changes.
	// Default: true
	Watch bool `yaml:"watch"`

	// CacheTTL is how long resolved values are reused. Zero disables
	// caching.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains configuration for structured logging.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format: "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains configuration for Prometheus metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the admin path serving the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "gatehouse"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains configuration for OpenTelemetry tracing of
// forwarded requests.
type TracingConfig struct {
	// Enabled turns on span export.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "gatehouse"
	ServiceName string `yaml:"service_name"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export call.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Sampler is "always", "never" or "ratio".
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of new traces recorded by the ratio sampler.
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`
}
