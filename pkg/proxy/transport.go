package proxy

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// Transport defaults.
const (
	DefaultDialTimeout         = 30 * time.Second
	DefaultMaxIdleConnsPerHost = 32

	defaultKeepAlive           = 30 * time.Second
	defaultIdleConnTimeout     = 90 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
)

// TransportConfig configures the connection pool used to reach backends.
type TransportConfig struct {
	// DialTimeout bounds establishing a TCP connection to a backend.
	DialTimeout time.Duration

	// InsecureSkipVerify disables verification of https backend certificates.
	InsecureSkipVerify bool

	// MaxIdleConnsPerHost caps pooled idle connections per backend.
	MaxIdleConnsPerHost int
}

// NewTransport builds the upstream transport. Only connection setup is
// bounded; once a backend accepts, the exchange may run as long as the
// client stays connected, which long-lived streams depend on.
//
// Compression is left to the endpoints: the transport neither adds
// Accept-Encoding nor decodes bodies.
func NewTransport(cfg TransportConfig) *http.Transport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: defaultKeepAlive,
	}

	return &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed backends
		},
	}
}
