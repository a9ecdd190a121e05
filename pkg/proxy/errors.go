package proxy

import (
	"fmt"
	"net/http"
)

// badGatewayBody is the fixed body sent when a backend cannot be reached.
const badGatewayBody = "Bad Gateway"

// UpstreamError reports a failed exchange with a route's backend.
type UpstreamError struct {
	RouteID string
	Host    string
	Backend string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s for host %s (route %s): %v", e.Backend, e.Host, e.RouteID, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// StatusCode is the status the client receives for this error.
func (e *UpstreamError) StatusCode() int {
	return http.StatusBadGateway
}

func writeText(w http.ResponseWriter, status int, body string) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Del("Content-Length")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
