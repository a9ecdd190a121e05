// Package tracing provides OpenTelemetry tracing for forwarded requests.
//
// # Overview
//
// When enabled, the gateway opens one server span per forwarded request,
// continues any W3C trace context the client sent, and injects its own
// context into the upstream request so backend spans join the same trace.
// Spans are batched to an OTLP gRPC collector.
//
//	traceparent: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//
// # Sampling Strategies
//
//   - always: sample all traces
//   - never: sample no new traces
//   - ratio: sample a fraction of traces by trace ID
//
// Every strategy is parent-based: a sampled incoming traceparent is honored.
//
// # Usage
//
//	tracer, err := tracing.New(tracing.Config{
//	    Enabled:     true,
//	    Endpoint:    "otel-collector:4317",
//	    Insecure:    true,
//	    Sampler:     "ratio",
//	    SampleRatio: 0.1,
//	})
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
// # Configuration
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: "localhost:4317"
//	    insecure: true
//	    sampler: "ratio"
//	    sample_ratio: 0.1
//
// A disabled tracer hands out no-op spans and leaves client trace headers
// untouched.
package tracing
