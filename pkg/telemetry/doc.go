// Package telemetry groups the gateway's observability packages.
//
// # Components
//
//   - logging: slog JSON or text handlers with credential redaction and
//     trace correlation
//   - metrics: Prometheus collectors for forwarding, route reloads,
//     certificate loads and admission decisions
//   - tracing: OpenTelemetry spans for forwarded requests, exported over
//     OTLP/gRPC
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//		return err
//	}
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
//	tracer, err := tracing.New(tracing.Config{Enabled: true, ServiceName: "gatehouse"})
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(ctx)
//
// The admin API serves /health, /ready, /version and the metrics path to
// loopback hosts without a route.
package telemetry
