package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	gwtls "mercator-hq/gatehouse/pkg/security/tls"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "gateway.https_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration. All validation errors are
// collected and returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateGateway(&cfg.Gateway)...)
	errs = append(errs, validateRoutes(&cfg.Routes)...)
	errs = append(errs, validateUpstream(&cfg.Upstream)...)
	errs = append(errs, validateAdmission(&cfg.Admission)...)
	errs = append(errs, validateAdmin(&cfg.Admin)...)
	errs = append(errs, validateSecrets(&cfg.Secrets)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateGateway(cfg *GatewayConfig) []FieldError {
	var errs []FieldError

	if cfg.HTTPAddress == "" && cfg.HTTPSAddress == "" {
		errs = append(errs, FieldError{
			Field:   "gateway",
			Message: "at least one of http_address or https_address is required",
		})
	}
	for field, addr := range map[string]string{
		"gateway.http_address":  cfg.HTTPAddress,
		"gateway.https_address": cfg.HTTPSAddress,
	} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, FieldError{
				Field:   field,
				Message: fmt.Sprintf("invalid listen address %q: %v", addr, err),
			})
		}
	}
	if cfg.HTTPAddress != "" && cfg.HTTPAddress == cfg.HTTPSAddress {
		errs = append(errs, FieldError{
			Field:   "gateway.https_address",
			Message: "must differ from http_address",
		})
	}

	errs = append(errs, validatePositiveDuration("gateway.read_header_timeout", cfg.ReadHeaderTimeout)...)
	errs = append(errs, validatePositiveDuration("gateway.idle_timeout", cfg.IdleTimeout)...)
	errs = append(errs, validatePositiveDuration("gateway.shutdown_timeout", cfg.ShutdownTimeout)...)

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "gateway.max_header_bytes",
			Message: "must be non-negative",
		})
	}

	switch cfg.TLS.MinVersion {
	case "1.2", "1.3":
	default:
		errs = append(errs, FieldError{
			Field:   "gateway.tls.min_version",
			Message: fmt.Sprintf("must be \"1.2\" or \"1.3\", got %q", cfg.TLS.MinVersion),
		})
	}
	for i, suite := range cfg.TLS.CipherSuites {
		if !gwtls.IsSupportedCipherSuite(suite) {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("gateway.tls.cipher_suites[%d]", i),
				Message: fmt.Sprintf("unsupported cipher suite %q", suite),
			})
		}
	}

	return errs
}

func validateRoutes(cfg *RoutesConfig) []FieldError {
	var errs []FieldError

	if strings.TrimSpace(cfg.ConfigPath) == "" {
		errs = append(errs, FieldError{
			Field:   "routes.config_path",
			Message: "config path is required",
		})
	}
	errs = append(errs, validatePositiveDuration("routes.config_settle_delay", cfg.ConfigSettleDelay)...)
	errs = append(errs, validatePositiveDuration("routes.certificate_settle_delay", cfg.CertificateSettleDelay)...)

	return errs
}

func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	errs = append(errs, validatePositiveDuration("upstream.dial_timeout", cfg.DialTimeout)...)
	if cfg.MaxIdleConnsPerHost < 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.max_idle_conns_per_host",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateAdmission(cfg *AdmissionConfig) []FieldError {
	var errs []FieldError

	positive := []struct {
		field string
		value int
	}{
		{"admission.max_requests_per_second", cfg.MaxRequestsPerSecond},
		{"admission.max_requests_per_minute", cfg.MaxRequestsPerMinute},
		{"admission.time_window_minutes", cfg.TimeWindowMinutes},
		{"admission.block_duration_minutes", cfg.BlockDurationMinutes},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, FieldError{
				Field:   p.field,
				Message: fmt.Sprintf("must be positive, got %d", p.value),
			})
		}
	}

	if cfg.MaxRequestsPerSecond > 0 && cfg.MaxRequestsPerMinute > 0 &&
		cfg.MaxRequestsPerMinute < cfg.MaxRequestsPerSecond {
		errs = append(errs, FieldError{
			Field:   "admission.max_requests_per_minute",
			Message: "must be at least max_requests_per_second",
		})
	}

	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "admission.sweep_schedule",
			Message: fmt.Sprintf("invalid schedule %q: %v", cfg.SweepSchedule, err),
		})
	}

	return errs
}

func validateAdmin(cfg *AdminConfig) []FieldError {
	var errs []FieldError

	names := make(map[string]bool)
	for i, k := range cfg.APIKeys {
		field := fmt.Sprintf("admin.api_keys[%d]", i)
		if k.Key == "" {
			errs = append(errs, FieldError{Field: field + ".key", Message: "is required"})
		}
		if k.Name != "" {
			if names[k.Name] {
				errs = append(errs, FieldError{
					Field:   field + ".name",
					Message: fmt.Sprintf("duplicate name %q", k.Name),
				})
			}
			names[k.Name] = true
		}
	}

	return errs
}

func validateSecrets(cfg *SecretsConfig) []FieldError {
	var errs []FieldError

	if cfg.CacheTTL < 0 {
		errs = append(errs, FieldError{
			Field:   "secrets.cache_ttl",
			Message: fmt.Sprintf("must not be negative, got %s", cfg.CacheTTL),
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled {
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "must start with /",
			})
		}
		if strings.HasPrefix(cfg.Metrics.Path, "/api/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "must not shadow the /api/ prefix",
			})
		}
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Sampler {
		case "always", "never":
		case "ratio":
			if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
				errs = append(errs, FieldError{
					Field:   "telemetry.tracing.sample_ratio",
					Message: fmt.Sprintf("must be between 0.0 and 1.0, got %v", cfg.Tracing.SampleRatio),
				})
			}
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q (must be always, never, or ratio)", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "is required when tracing is enabled",
			})
		}
	}

	return errs
}

func validatePositiveDuration(field string, d time.Duration) []FieldError {
	if d <= 0 {
		return []FieldError{{
			Field:   field,
			Message: fmt.Sprintf("must be positive, got %s", d),
		}}
	}
	return nil
}
