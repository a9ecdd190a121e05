package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int64
	written    bool
}

// newResponseWriter creates a new response writer wrapper.
func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code before writing.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write ensures WriteHeader is called if not already done.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Flush forwards to the underlying writer so streamed responses are not held
// back by the wrapper.
func (rw *responseWriter) Flush() {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// LoggingMiddleware logs HTTP requests and responses with structured logging.
// It records host, method, path, status code, latency, bytes written and the
// request ID.
//
// Log format (JSON):
//
//	{
//	  "time": "2026-03-02T10:30:00Z",
//	  "level": "INFO",
//	  "msg": "request completed",
//	  "host": "app.example.com",
//	  "method": "POST",
//	  "path": "/orders",
//	  "status": 200,
//	  "latency_ms": 12,
//	  "bytes": 512,
//	  "request_id": "a1b2c3d4...",
//	  "remote_addr": "192.168.1.100:54321"
//	}
//
// Example usage:
//
//	handler = LoggingMiddleware(handler)
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ctx := context.WithValue(r.Context(), StartTimeKey, startTime)

		rw := newResponseWriter(w)

		requestID := GetRequestID(ctx)
		slog.DebugContext(ctx, "request started",
			"host", r.Host,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		// A handler that panics (http.ErrAbortHandler on a broken stream)
		// still gets its access-log line; the panic keeps unwinding.
		aborted := true
		defer func() {
			logCompletion(ctx, r, rw, time.Since(startTime), requestID, aborted)
		}()

		next.ServeHTTP(rw, r.WithContext(ctx))
		aborted = false
	})
}

func logCompletion(ctx context.Context, r *http.Request, rw *responseWriter, latency time.Duration, requestID string, aborted bool) {
	status := rw.statusCode
	if aborted && !rw.written {
		status = http.StatusInternalServerError
	}

	logLevel := slog.LevelInfo
	if status >= 500 {
		logLevel = slog.LevelError
	} else if status >= 400 || aborted {
		logLevel = slog.LevelWarn
	}

	attrs := []any{
		"host", r.Host,
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"latency_ms", latency.Milliseconds(),
		"bytes", rw.bytes,
		"request_id", requestID,
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent(),
	}
	if aborted {
		attrs = append(attrs, "aborted", true)
	}

	slog.Log(ctx, logLevel, "request completed", attrs...)
}

// GetStartTime extracts the request start time from the context.
// Returns zero time if not found.
func GetStartTime(ctx context.Context) time.Time {
	if startTime, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return startTime
	}
	return time.Time{}
}
