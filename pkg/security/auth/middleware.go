package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// HeaderAPIKey is the alternative to an Authorization bearer token.
const HeaderAPIKey = "X-API-Key"

type contextKey struct{}

// Middleware requires a valid API key on every request it wraps.
type Middleware struct {
	validator *Validator
	logger    *slog.Logger
	deny      func(http.ResponseWriter, *http.Request)
}

// NewMiddleware wraps validator. deny writes the 401 response; nil selects
// a plain-text one.
func NewMiddleware(validator *Validator, logger *slog.Logger, deny func(http.ResponseWriter, *http.Request)) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	if deny == nil {
		deny = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "missing or invalid API key", http.StatusUnauthorized)
		}
	}
	return &Middleware{validator: validator, logger: logger, deny: deny}
}

// Handle authenticates requests before passing them to next. The matched
// key name is available to next through KeyName.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, err := m.validator.Validate(extractKey(r))
		if err != nil {
			m.logger.Warn("Admin request rejected",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"error", err,
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="gatehouse"`)
			m.deny(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, name)))
	})
}

// KeyName returns the name of the key that authenticated ctx's request.
func KeyName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(contextKey{}).(string)
	return name, ok
}

// extractKey reads "Authorization: Bearer <key>", then X-API-Key.
func extractKey(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		scheme, token, ok := strings.Cut(v, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get(HeaderAPIKey))
}
