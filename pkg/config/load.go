package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded over DefaultConfig, remaining zero values are
// defaulted, and the result is validated. Environment variables are not
// consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration over the defaults without validating.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention GATEHOUSE_SECTION_FIELD and always take precedence over the
// file.
//
// An empty path skips the file and starts from DefaultConfig.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = DefaultConfig()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Malformed values are ignored and the file value is kept.
func applyEnvOverrides(cfg *Config) {
	// Gateway overrides
	if val, ok := os.LookupEnv("GATEHOUSE_GATEWAY_HTTP_ADDRESS"); ok {
		cfg.Gateway.HTTPAddress = val
	}
	if val, ok := os.LookupEnv("GATEHOUSE_GATEWAY_HTTPS_ADDRESS"); ok {
		cfg.Gateway.HTTPSAddress = val
	}
	overrideDuration("GATEHOUSE_GATEWAY_READ_HEADER_TIMEOUT", &cfg.Gateway.ReadHeaderTimeout)
	overrideDuration("GATEHOUSE_GATEWAY_IDLE_TIMEOUT", &cfg.Gateway.IdleTimeout)
	overrideDuration("GATEHOUSE_GATEWAY_SHUTDOWN_TIMEOUT", &cfg.Gateway.ShutdownTimeout)
	overrideInt("GATEHOUSE_GATEWAY_MAX_HEADER_BYTES", &cfg.Gateway.MaxHeaderBytes)
	if val := os.Getenv("GATEHOUSE_GATEWAY_TLS_MIN_VERSION"); val != "" {
		cfg.Gateway.TLS.MinVersion = val
	}
	if val := os.Getenv("GATEHOUSE_GATEWAY_TLS_CIPHER_SUITES"); val != "" {
		cfg.Gateway.TLS.CipherSuites = splitList(val)
	}

	// Routes overrides
	if val := os.Getenv("GATEHOUSE_ROUTES_CONFIG_PATH"); val != "" {
		cfg.Routes.ConfigPath = val
	}
	overrideDuration("GATEHOUSE_ROUTES_CONFIG_SETTLE_DELAY", &cfg.Routes.ConfigSettleDelay)
	overrideDuration("GATEHOUSE_ROUTES_CERTIFICATE_SETTLE_DELAY", &cfg.Routes.CertificateSettleDelay)

	// Upstream overrides
	overrideDuration("GATEHOUSE_UPSTREAM_DIAL_TIMEOUT", &cfg.Upstream.DialTimeout)
	overrideBool("GATEHOUSE_UPSTREAM_INSECURE_SKIP_VERIFY", &cfg.Upstream.InsecureSkipVerify)
	overrideInt("GATEHOUSE_UPSTREAM_MAX_IDLE_CONNS_PER_HOST", &cfg.Upstream.MaxIdleConnsPerHost)

	// Admission overrides
	overrideBool("GATEHOUSE_ADMISSION_ENABLED", &cfg.Admission.Enabled)
	overrideInt("GATEHOUSE_ADMISSION_MAX_REQUESTS_PER_SECOND", &cfg.Admission.MaxRequestsPerSecond)
	overrideInt("GATEHOUSE_ADMISSION_MAX_REQUESTS_PER_MINUTE", &cfg.Admission.MaxRequestsPerMinute)
	overrideInt("GATEHOUSE_ADMISSION_TIME_WINDOW_MINUTES", &cfg.Admission.TimeWindowMinutes)
	overrideInt("GATEHOUSE_ADMISSION_BLOCK_DURATION_MINUTES", &cfg.Admission.BlockDurationMinutes)
	if val := os.Getenv("GATEHOUSE_ADMISSION_SWEEP_SCHEDULE"); val != "" {
		cfg.Admission.SweepSchedule = val
	}
	if val, ok := os.LookupEnv("GATEHOUSE_ADMISSION_PERSIST_PATH"); ok {
		cfg.Admission.PersistPath = val
	}

	// Admin overrides
	overrideBool("GATEHOUSE_ADMIN_ENABLED", &cfg.Admin.Enabled)

	// Secrets overrides
	if val, ok := os.LookupEnv("GATEHOUSE_SECRETS_DIRECTORY"); ok {
		cfg.Secrets.Directory = val
	}
	overrideBool("GATEHOUSE_SECRETS_WATCH", &cfg.Secrets.Watch)
	overrideDuration("GATEHOUSE_SECRETS_CACHE_TTL", &cfg.Secrets.CacheTTL)

	// Telemetry overrides
	if val := os.Getenv("GATEHOUSE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("GATEHOUSE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	overrideBool("GATEHOUSE_TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	overrideBool("GATEHOUSE_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	if val := os.Getenv("GATEHOUSE_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
	if val := os.Getenv("GATEHOUSE_TELEMETRY_METRICS_NAMESPACE"); val != "" {
		cfg.Telemetry.Metrics.Namespace = val
	}
	overrideBool("GATEHOUSE_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	if val := os.Getenv("GATEHOUSE_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}
	overrideBool("GATEHOUSE_TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)
	if val := os.Getenv("GATEHOUSE_TELEMETRY_TRACING_SAMPLER"); val != "" {
		cfg.Telemetry.Tracing.Sampler = val
	}
	if val := os.Getenv("GATEHOUSE_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func overrideDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func overrideInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func overrideBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
