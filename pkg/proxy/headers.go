package proxy

import (
	"net"
	"net/http"
	"net/textproto"
	"strings"

	"mercator-hq/gatehouse/internal/hostname"
)

// hopHeaders are connection-scoped and never forwarded in either direction.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Transfer-Encoding",
	"Upgrade",
	"Te",
	"Trailer",
}

// removeHopHeaders deletes the fixed hop-by-hop set and every header named
// in Connection.
func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = textproto.TrimString(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func isContentHeader(name string) bool {
	return strings.HasPrefix(textproto.CanonicalMIMEHeaderKey(name), "Content-")
}

// copyRequestHeaders copies client headers to the upstream request.
// Content-* headers travel only with a body, and the client's Content-Length
// never travels because the transport frames the streamed body itself.
func copyRequestHeaders(dst, src http.Header, withBody bool) {
	for name, values := range src {
		if isContentHeader(name) {
			if !withBody || textproto.CanonicalMIMEHeaderKey(name) == "Content-Length" {
				continue
			}
		}
		dst[name] = append([]string(nil), values...)
	}
	removeHopHeaders(dst)
}

// copyResponseHeaders copies backend headers to the client response.
func copyResponseHeaders(dst, src http.Header) {
	filtered := src.Clone()
	removeHopHeaders(filtered)
	for name, values := range filtered {
		dst[name] = values
	}
}

// setForwardedHeaders adds X-Forwarded-* and RFC 7239 Forwarded describing
// the client connection. Existing X-Forwarded-For and Forwarded chains are
// extended rather than replaced.
func setForwardedHeaders(out http.Header, r *http.Request) {
	peer := peerIP(r)
	proto := requestScheme(r)

	if prior := out.Values("X-Forwarded-For"); len(prior) > 0 && peer != "" {
		out.Set("X-Forwarded-For", strings.Join(prior, ", ")+", "+peer)
	} else if peer != "" {
		out.Set("X-Forwarded-For", peer)
	}
	out.Set("X-Forwarded-Host", r.Host)
	out.Set("X-Forwarded-Proto", proto)
	out.Set("X-Forwarded-Port", requestPort(r, proto))

	element := "for=" + forwardedNode(peer) +
		";host=" + forwardedValue(r.Host) +
		";proto=" + proto
	if prior := out.Values("Forwarded"); len(prior) > 0 {
		element = strings.Join(prior, ", ") + ", " + element
	}
	out.Set("Forwarded", element)
}

func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// requestPort prefers the port in the Host header, then the listener the
// request arrived on, then the scheme default.
func requestPort(r *http.Request, proto string) string {
	if port := hostname.Port(r.Host); port != "" {
		return port
	}
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		if _, port, err := net.SplitHostPort(addr.String()); err == nil {
			return port
		}
	}
	if proto == "https" {
		return "443"
	}
	return "80"
}

// forwardedNode formats a node identifier for Forwarded: IPv6 addresses are
// bracketed and quoted, unknown peers use the "unknown" token.
func forwardedNode(ip string) string {
	if ip == "" {
		return "unknown"
	}
	if strings.Contains(ip, ":") {
		return `"[` + ip + `]"`
	}
	return forwardedValue(ip)
}

// forwardedValue returns v as a token when possible, else as a quoted string.
func forwardedValue(v string) string {
	for i := 0; i < len(v); i++ {
		if !isTokenChar(v[i]) {
			return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
		}
	}
	if v == "" {
		return `""`
	}
	return v
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0
}
