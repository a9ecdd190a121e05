package routing

import (
	"fmt"
	"net/url"
	"strings"

	"mercator-hq/gatehouse/internal/hostname"
)

// Route is the live backend descriptor for one host. Routes are immutable
// once stored in a Table; updates replace the whole value.
type Route struct {
	// ID is the identifier of the route entry that produced this route.
	ID string

	// Name is a human-readable label.
	Name string

	// Host is the normalized host name this route answers for.
	Host string

	// Backend is the origin requests are forwarded to.
	Backend *url.URL

	// Enabled reports whether the route accepts traffic.
	Enabled bool
}

// NewRoute builds a route from raw host and backend strings. The host may be
// a bare name or a URL; only its host part is kept.
func NewRoute(id, name, host, backend string, enabled bool) (*Route, error) {
	h := ParseHost(host)
	if h == "" {
		return nil, fmt.Errorf("route %q: empty host", id)
	}

	u, err := ParseBackend(backend)
	if err != nil {
		return nil, fmt.Errorf("route %q: %w", id, err)
	}

	return &Route{
		ID:      id,
		Name:    name,
		Host:    h,
		Backend: u,
		Enabled: enabled,
	}, nil
}

// ParseHost extracts and normalizes the host of a bare name or URL.
func ParseHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return hostname.Normalize(u.Host)
	}

	if i := strings.IndexByte(raw, '/'); i >= 0 {
		raw = raw[:i]
	}
	return hostname.Normalize(raw)
}

// ParseBackend validates a backend origin URL. Only http and https are
// accepted.
func ParseBackend(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty backend URL")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("backend URL %q has no host", raw)
	}

	return u, nil
}
