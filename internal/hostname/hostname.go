// Package hostname normalizes request and SNI host names so that route and
// certificate lookups agree on a single key format.
package hostname

import (
	"net"
	"strings"
)

const wwwPrefix = "www."

// Normalize lowercases host, strips any port, surrounding brackets and a
// trailing dot. It returns "" for an empty or whitespace-only input.
func Normalize(host string) string {
	h := strings.TrimSpace(host)
	if h == "" {
		return ""
	}

	h = StripPort(h)
	h = strings.TrimSuffix(h, ".")

	return strings.ToLower(h)
}

// StripPort removes a ":port" suffix from host. IPv6 literals keep their
// address and lose the brackets.
func StripPort(host string) string {
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end > 0 {
			return host[1:end]
		}
		return host
	}

	// A bare IPv6 literal has more than one colon and no port.
	if strings.Count(host, ":") > 1 {
		return host
	}

	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		return host[:i]
	}

	return host
}

// Port returns the ":port" part of host without the colon, or "" when no
// port is present.
func Port(host string) string {
	if _, port, err := net.SplitHostPort(host); err == nil {
		return port
	}
	return ""
}

// Alias returns the www/non-www counterpart of an already normalized host:
// "www.example.com" -> "example.com" and "example.com" -> "www.example.com".
// IP literals, single-label names and wildcard patterns have no alias.
func Alias(host string) string {
	if host == "" || IsIP(host) || strings.HasPrefix(host, "*.") {
		return ""
	}

	if rest, ok := strings.CutPrefix(host, wwwPrefix); ok {
		if !strings.Contains(rest, ".") {
			return ""
		}
		return rest
	}

	if !strings.Contains(host, ".") {
		return ""
	}

	return wwwPrefix + host
}

// IsIP reports whether host is an IPv4 or IPv6 literal.
func IsIP(host string) bool {
	return net.ParseIP(host) != nil
}

// IsLoopback reports whether a normalized host refers to the local machine.
func IsLoopback(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}

	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Tokens splits a name on '.', '-' and '_' and drops empty parts.
func Tokens(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
}
