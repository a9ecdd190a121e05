// Package metrics exposes gateway metrics in Prometheus format.
//
// A single Collector owns a registry and implements the recorder interfaces
// of the forwarding pipeline (proxy.Recorder), the route configuration
// engine (routes.Recorder) and admission control (admission.Recorder).
//
// # Metrics
//
//	gatehouse_proxy_requests_total{host,code}
//	gatehouse_proxy_request_duration_seconds{host}
//	gatehouse_proxy_upstream_errors_total{host}
//	gatehouse_routes_reloads_total{result}
//	gatehouse_routes_certificate_loads_total{result}
//	gatehouse_routes_active
//	gatehouse_routes_certificates
//	gatehouse_admission_decisions_total{result,reason}
//	gatehouse_admission_tracked_clients
//	gatehouse_admission_blocked_clients
//
// Host label values are capped; hosts beyond the cap are reported as
// "other". With metrics disabled every Record and Set call is a no-op.
package metrics
