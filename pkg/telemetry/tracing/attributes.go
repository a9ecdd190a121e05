package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on gateway spans. HTTP attributes follow OpenTelemetry
// semantic conventions; gateway-specific ones use the "gatehouse." prefix.
const (
	AttrRouteID   = "gatehouse.route.id"
	AttrRouteHost = "gatehouse.route.host"
	AttrBackend   = "gatehouse.backend"
	AttrRequestID = "gatehouse.request_id"

	AttrHTTPMethod = "http.request.method"
	AttrHTTPStatus = "http.response.status_code"
	AttrURLPath    = "url.path"
)

// SetRouteAttributes records which route served the request.
func SetRouteAttributes(span trace.Span, routeID, host, backend string) {
	span.SetAttributes(
		attribute.String(AttrRouteID, routeID),
		attribute.String(AttrRouteHost, host),
		attribute.String(AttrBackend, backend),
	)
}

// SetRequestAttributes records request identity on the span.
func SetRequestAttributes(span trace.Span, requestID, method, path string) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrURLPath, path),
	}
	if requestID != "" {
		attrs = append(attrs, attribute.String(AttrRequestID, requestID))
	}
	span.SetAttributes(attrs...)
}

// SetStatusCode records the response status; 5xx marks the span as failed.
func SetStatusCode(span trace.Span, status int) {
	span.SetAttributes(attribute.Int(AttrHTTPStatus, status))
	if status >= 500 {
		span.SetStatus(codes.Error, "")
	}
}
