package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gatehouse.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Gateway.HTTPSAddress != DefaultHTTPSAddress {
		t.Errorf("HTTPSAddress = %q, want %q", cfg.Gateway.HTTPSAddress, DefaultHTTPSAddress)
	}
	if cfg.Routes.ConfigSettleDelay != 100*time.Millisecond {
		t.Errorf("ConfigSettleDelay = %v, want 100ms", cfg.Routes.ConfigSettleDelay)
	}
	if cfg.Routes.CertificateSettleDelay != 500*time.Millisecond {
		t.Errorf("CertificateSettleDelay = %v, want 500ms", cfg.Routes.CertificateSettleDelay)
	}
	if !cfg.Admission.Enabled {
		t.Error("admission should be enabled by default")
	}
	if cfg.Admission.MaxRequestsPerSecond != 10 || cfg.Admission.MaxRequestsPerMinute != 100 {
		t.Errorf("admission thresholds = %d/%d, want 10/100",
			cfg.Admission.MaxRequestsPerSecond, cfg.Admission.MaxRequestsPerMinute)
	}
	if cfg.Admission.TimeWindow() != 5*time.Minute {
		t.Errorf("TimeWindow() = %v, want 5m", cfg.Admission.TimeWindow())
	}
	if cfg.Admission.BlockDuration() != 30*time.Minute {
		t.Errorf("BlockDuration() = %v, want 30m", cfg.Admission.BlockDuration())
	}
}

func TestApplyDefaultsIdempotent(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	first := *cfg
	ApplyDefaults(cfg)

	if cfg.Gateway.ReadHeaderTimeout != first.Gateway.ReadHeaderTimeout ||
		cfg.Admission.SweepSchedule != first.Admission.SweepSchedule ||
		cfg.Telemetry.Metrics.Path != first.Telemetry.Metrics.Path {
		t.Error("ApplyDefaults should be idempotent")
	}
	if cfg.Gateway.HTTPAddress != "" {
		t.Error("ApplyDefaults must not fill listener addresses")
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
gateway:
  http_address: ":8080"
  https_address: ":8443"
routes:
  config_path: /etc/gatehouse/routes
admission:
  max_requests_per_second: 20
  max_requests_per_minute: 200
telemetry:
  logging:
    level: debug
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Gateway.HTTPAddress != ":8080" {
		t.Errorf("HTTPAddress = %q, want :8080", cfg.Gateway.HTTPAddress)
	}
	if cfg.Routes.ConfigPath != "/etc/gatehouse/routes" {
		t.Errorf("ConfigPath = %q", cfg.Routes.ConfigPath)
	}
	if cfg.Admission.MaxRequestsPerSecond != 20 {
		t.Errorf("MaxRequestsPerSecond = %d, want 20", cfg.Admission.MaxRequestsPerSecond)
	}
	if !cfg.Admission.Enabled {
		t.Error("omitted admission.enabled should keep its default of true")
	}
	if cfg.Admission.BlockDurationMinutes != DefaultBlockDurationMinutes {
		t.Errorf("BlockDurationMinutes = %d, want default", cfg.Admission.BlockDurationMinutes)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigSecretsAndAPIKeys(t *testing.T) {
	path := writeConfig(t, `
admin:
  api_keys:
    - name: deploy
      key: "${secret:admin-deploy}"
secrets:
  directory: /run/secrets
  cache_ttl: 0s
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if len(cfg.Admin.APIKeys) != 1 || cfg.Admin.APIKeys[0].Name != "deploy" ||
		cfg.Admin.APIKeys[0].Key != "${secret:admin-deploy}" {
		t.Errorf("APIKeys = %+v", cfg.Admin.APIKeys)
	}
	if !cfg.Admin.Enabled {
		t.Error("omitted admin.enabled should keep its default of true")
	}
	if cfg.Secrets.Directory != "/run/secrets" {
		t.Errorf("Secrets.Directory = %q", cfg.Secrets.Directory)
	}
	if cfg.Secrets.EnvPrefix != DefaultSecretsEnvPrefix {
		t.Errorf("Secrets.EnvPrefix = %q, want default", cfg.Secrets.EnvPrefix)
	}
	if !cfg.Secrets.Watch {
		t.Error("omitted secrets.watch should keep its default of true")
	}
	if cfg.Secrets.CacheTTL != 0 {
		t.Errorf("explicit cache_ttl of 0s = %v, want 0", cfg.Secrets.CacheTTL)
	}
}

func TestLoadConfigExplicitFalse(t *testing.T) {
	path := writeConfig(t, `
admission:
  enabled: false
admin:
  enabled: false
gateway:
  http_address: ""
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Admission.Enabled || cfg.Admin.Enabled {
		t.Error("explicit false should override defaults")
	}
	if cfg.Gateway.HTTPAddress != "" {
		t.Error("explicit empty http_address should disable the listener")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	if _, err := LoadConfig(writeConfig(t, "gateway: [unclosed")); err == nil {
		t.Error("expected error for malformed YAML")
	}

	_, err := LoadConfig(writeConfig(t, `
admission:
  max_requests_per_second: -1
`))
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
gateway:
  https_address: ":8443"
`)

	t.Setenv("GATEHOUSE_GATEWAY_HTTPS_ADDRESS", ":9443")
	t.Setenv("GATEHOUSE_ROUTES_CONFIG_PATH", "/srv/routes")
	t.Setenv("GATEHOUSE_ROUTES_CONFIG_SETTLE_DELAY", "250ms")
	t.Setenv("GATEHOUSE_ADMISSION_MAX_REQUESTS_PER_SECOND", "15")
	t.Setenv("GATEHOUSE_ADMISSION_ENABLED", "false")
	t.Setenv("GATEHOUSE_GATEWAY_TLS_CIPHER_SUITES", "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384")
	t.Setenv("GATEHOUSE_UPSTREAM_DIAL_TIMEOUT", "not-a-duration")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}

	if cfg.Gateway.HTTPSAddress != ":9443" {
		t.Errorf("HTTPSAddress = %q, want :9443", cfg.Gateway.HTTPSAddress)
	}
	if cfg.Routes.ConfigPath != "/srv/routes" {
		t.Errorf("ConfigPath = %q, want /srv/routes", cfg.Routes.ConfigPath)
	}
	if cfg.Routes.ConfigSettleDelay != 250*time.Millisecond {
		t.Errorf("ConfigSettleDelay = %v, want 250ms", cfg.Routes.ConfigSettleDelay)
	}
	if cfg.Admission.MaxRequestsPerSecond != 15 {
		t.Errorf("MaxRequestsPerSecond = %d, want 15", cfg.Admission.MaxRequestsPerSecond)
	}
	if cfg.Admission.Enabled {
		t.Error("GATEHOUSE_ADMISSION_ENABLED=false should disable admission")
	}
	if len(cfg.Gateway.TLS.CipherSuites) != 2 {
		t.Errorf("CipherSuites = %v, want 2 entries", cfg.Gateway.TLS.CipherSuites)
	}
	if cfg.Upstream.DialTimeout != DefaultUpstreamDialTimeout {
		t.Errorf("malformed duration should be ignored, got %v", cfg.Upstream.DialTimeout)
	}
}

func TestLoadConfigWithEnvOverridesNoFile(t *testing.T) {
	t.Setenv("GATEHOUSE_GATEWAY_HTTP_ADDRESS", ":8081")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides(\"\") error = %v", err)
	}
	if cfg.Gateway.HTTPAddress != ":8081" {
		t.Errorf("HTTPAddress = %q, want :8081", cfg.Gateway.HTTPAddress)
	}
}
