package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// RecoveryMiddleware recovers from panics in HTTP handlers and returns a 500
// Internal Server Error response with a JSON body. The panic is logged with
// its stack trace; internal details are not exposed to clients.
//
// http.ErrAbortHandler is re-raised so net/http can abort the connection
// silently, which the gateway relies on when a streamed response breaks.
//
// Example usage:
//
//	handler = RecoveryMiddleware(handler)
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}

			slog.ErrorContext(r.Context(), "panic in handler",
				"error", err,
				"request_id", GetRequestID(r.Context()),
				"method", r.Method,
				"host", r.Host,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)

			WriteError(w, http.StatusInternalServerError, "internal_error",
				"An internal error occurred. Please try again later.")
		}()

		next.ServeHTTP(w, r)
	})
}
