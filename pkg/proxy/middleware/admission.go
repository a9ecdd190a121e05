package middleware

import (
	"context"
	"net/http"
	"strconv"

	"mercator-hq/gatehouse/pkg/limits/admission"
)

// RetryAfterSeconds is the fixed Retry-After value sent with 429 responses.
const RetryAfterSeconds = 60

// AdmissionChecker decides whether a client address may proceed.
type AdmissionChecker interface {
	Check(ip string) admission.Decision
}

// AdmissionMiddleware creates middleware that refuses requests from clients
// admission control has blocked. Refused requests get 429 Too Many Requests
// with a Retry-After header and a JSON body; the wrapped handler is not called.
//
// The client address is the first X-Forwarded-For entry when present,
// otherwise the connection's peer address.
//
// Example usage:
//
//	handler = AdmissionMiddleware(guard)(handler)
func AdmissionMiddleware(checker AdmissionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if checker == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := admission.ClientIP(r)
			ctx := context.WithValue(r.Context(), ClientIPKey, ip)

			decision := checker.Check(ip)
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
				WriteError(w, http.StatusTooManyRequests, "too_many_requests",
					"Request rate exceeded. Try again later.")
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientIP extracts the client address admission control evaluated.
// Returns empty string if not found.
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}
