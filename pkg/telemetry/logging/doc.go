// Package logging builds the process-wide structured logger.
//
// The logger is a plain *slog.Logger configured from telemetry.logging:
// level (debug, info, warn, error), format (json, text) and optional source
// locations. Loggers built from configuration mask credentials: attributes
// whose key mentions a password, secret, token, cookie, authorization or
// private key are replaced with "***", and bearer tokens or PEM private keys
// embedded in string values are masked. Records logged with a context that
// carries a sampled span gain a trace_id attribute.
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
package logging
