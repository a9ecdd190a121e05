// Package middleware provides the HTTP middleware chain that wraps the
// gateway.
//
// # Middleware Chain
//
// Requests pass through middleware in order:
//
//	Recovery -> RequestID -> Logging -> Admission -> Gateway
//
// Each middleware wraps the next handler in the chain. Recovery is outermost
// so a panic anywhere below still produces a response.
//
// # Request ID
//
// RequestIDMiddleware reuses a printable client-supplied X-Request-ID or
// generates a UUID v4. The ID is:
//   - Stored in the request context (RequestIDKey)
//   - Echoed in the X-Request-ID response header
//   - Forwarded to the backend with the request
//   - Logged with all request/response logs
//
// # Logging
//
// LoggingMiddleware uses structured logging (log/slog) to record request
// details once the response completes. 5xx responses log at ERROR, 4xx at
// WARN, everything else at INFO:
//
//	{
//	  "level": "INFO",
//	  "msg": "request completed",
//	  "host": "app.example.com",
//	  "method": "GET",
//	  "path": "/orders",
//	  "status": 200,
//	  "latency_ms": 4,
//	  "request_id": "550e8400-e29b-41d4-a716-446655440000"
//	}
//
// The wrapped writer implements http.Flusher and Unwrap so streamed
// responses flush through it.
//
// # Admission
//
// AdmissionMiddleware asks an admission checker about the client address
// (first X-Forwarded-For entry, else the peer address). Refused requests get:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 60
//	Content-Type: application/json
//
//	{"error":"too_many_requests","message":"Request rate exceeded. Try again later."}
//
// # Recovery
//
// RecoveryMiddleware catches panics in handlers and converts them to HTTP 500
// responses with a JSON body. The stack trace is logged but not exposed to
// clients. http.ErrAbortHandler is re-raised.
//
// # Thread Safety
//
// All middleware functions are thread-safe and can be called concurrently
// from multiple goroutines.
package middleware
