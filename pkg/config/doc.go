// Package config provides runtime configuration management for Gatehouse.
//
// Configuration is read once at startup from a YAML file, layered over
// built-in defaults, overridden by environment variables and validated.
// Route definitions are not part of this file; they live as one JSON
// document per route in the directory named by routes.config_path and are
// hot-reloaded by package routes.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("gatehouse.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("gatehouse.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention GATEHOUSE_SECTION_FIELD:
//
//   - GATEHOUSE_GATEWAY_HTTPS_ADDRESS overrides gateway.https_address
//   - GATEHOUSE_ROUTES_CONFIG_PATH overrides routes.config_path
//   - GATEHOUSE_ADMISSION_MAX_REQUESTS_PER_SECOND overrides admission.max_requests_per_second
//   - GATEHOUSE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast, reporting every invalid field)
//
// # Singleton Pattern
//
//	if err := config.Initialize("gatehouse.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// For testing, prefer explicit Config values over the global singleton.
package config
