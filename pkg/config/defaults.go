package config

import "time"

// Default values for configuration fields.
const (
	// Gateway defaults
	DefaultHTTPAddress       = ":80"
	DefaultHTTPSAddress      = ":443"
	DefaultReadHeaderTimeout = 30 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultMaxHeaderBytes    = 1048576 // 1MB
	DefaultTLSMinVersion     = "1.2"

	// Routes defaults
	DefaultRoutesConfigPath       = "./routes"
	DefaultConfigSettleDelay      = 100 * time.Millisecond
	DefaultCertificateSettleDelay = 500 * time.Millisecond

	// Upstream defaults
	DefaultUpstreamDialTimeout         = 30 * time.Second
	DefaultUpstreamMaxIdleConnsPerHost = 32

	// Admission defaults
	DefaultAdmissionEnabled       = true
	DefaultMaxRequestsPerSecond   = 10
	DefaultMaxRequestsPerMinute   = 100
	DefaultTimeWindowMinutes      = 5
	DefaultBlockDurationMinutes   = 30
	DefaultAdmissionSweepSchedule = "@every 5m"

	// Admin defaults
	DefaultAdminEnabled = true

	// Secrets defaults
	DefaultSecretsEnvPrefix = "GATEHOUSE_SECRET_"
	DefaultSecretsWatch     = true
	DefaultSecretsCacheTTL  = 5 * time.Minute

	// Telemetry defaults
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultMetricsEnabled   = true
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "gatehouse"
	DefaultTracingService   = "gatehouse"
	DefaultTracingEndpoint  = "localhost:4317"
	DefaultTracingTimeout   = 10 * time.Second
	DefaultTracingSampler   = "ratio"
	DefaultTracingRatio     = 0.1
)

// DefaultConfig returns a configuration with every field at its default.
// LoadConfig decodes the YAML file over this value, so boolean defaults of
// true survive when a file omits them.
func DefaultConfig() *Config {
	cfg := &Config{
		Gateway: GatewayConfig{
			HTTPAddress:  DefaultHTTPAddress,
			HTTPSAddress: DefaultHTTPSAddress,
		},
		Admission: AdmissionConfig{
			Enabled: DefaultAdmissionEnabled,
		},
		Admin: AdminConfig{
			Enabled: DefaultAdminEnabled,
		},
		Secrets: SecretsConfig{
			Watch:    DefaultSecretsWatch,
			CacheTTL: DefaultSecretsCacheTTL,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets defaults for any fields that have zero values.
// Listener addresses are left alone: an explicitly empty address disables
// that listener. This function is idempotent.
func ApplyDefaults(cfg *Config) {
	// Gateway defaults
	if cfg.Gateway.ReadHeaderTimeout == 0 {
		cfg.Gateway.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.Gateway.IdleTimeout == 0 {
		cfg.Gateway.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Gateway.ShutdownTimeout == 0 {
		cfg.Gateway.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Gateway.MaxHeaderBytes == 0 {
		cfg.Gateway.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Gateway.TLS.MinVersion == "" {
		cfg.Gateway.TLS.MinVersion = DefaultTLSMinVersion
	}

	// Routes defaults
	if cfg.Routes.ConfigPath == "" {
		cfg.Routes.ConfigPath = DefaultRoutesConfigPath
	}
	if cfg.Routes.ConfigSettleDelay == 0 {
		cfg.Routes.ConfigSettleDelay = DefaultConfigSettleDelay
	}
	if cfg.Routes.CertificateSettleDelay == 0 {
		cfg.Routes.CertificateSettleDelay = DefaultCertificateSettleDelay
	}

	// Upstream defaults
	if cfg.Upstream.DialTimeout == 0 {
		cfg.Upstream.DialTimeout = DefaultUpstreamDialTimeout
	}
	if cfg.Upstream.MaxIdleConnsPerHost == 0 {
		cfg.Upstream.MaxIdleConnsPerHost = DefaultUpstreamMaxIdleConnsPerHost
	}

	// Admission defaults
	if cfg.Admission.MaxRequestsPerSecond == 0 {
		cfg.Admission.MaxRequestsPerSecond = DefaultMaxRequestsPerSecond
	}
	if cfg.Admission.MaxRequestsPerMinute == 0 {
		cfg.Admission.MaxRequestsPerMinute = DefaultMaxRequestsPerMinute
	}
	if cfg.Admission.TimeWindowMinutes == 0 {
		cfg.Admission.TimeWindowMinutes = DefaultTimeWindowMinutes
	}
	if cfg.Admission.BlockDurationMinutes == 0 {
		cfg.Admission.BlockDurationMinutes = DefaultBlockDurationMinutes
	}
	if cfg.Admission.SweepSchedule == "" {
		cfg.Admission.SweepSchedule = DefaultAdmissionSweepSchedule
	}

	// Secrets defaults
	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
		if cfg.Telemetry.Tracing.SampleRatio == 0 {
			cfg.Telemetry.Tracing.SampleRatio = DefaultTracingRatio
		}
	}
}
