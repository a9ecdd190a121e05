package tls

import (
	"crypto/tls"
	"fmt"
)

// ServerConfig holds the listener-side TLS settings. Certificates are never
// configured here: every handshake is answered by an SNIResolver.
type ServerConfig struct {
	// MinVersion is the minimum TLS version to accept ("1.2" or "1.3").
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`

	// CipherSuites is a list of enabled TLS 1.2 cipher suites.
	// If empty, Go's default secure cipher suites are used.
	CipherSuites []string `yaml:"cipher_suites"`
}

// ToTLSConfig builds a crypto/tls.Config that selects certificates through
// resolver.
func (c *ServerConfig) ToTLSConfig(resolver *SNIResolver) (*tls.Config, error) {
	if resolver == nil {
		return nil, fmt.Errorf("SNI resolver is required")
	}

	suites, err := c.parseCipherSuites()
	if err != nil {
		return nil, err
	}

	// #nosec G402 - MinVersion is validated (TLS 1.0/1.1 rejected)
	return &tls.Config{
		MinVersion:     c.parseTLSVersion(),
		CipherSuites:   suites,
		GetCertificate: resolver.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
	}, nil
}

// parseTLSVersion converts MinVersion to a tls version constant.
func (c *ServerConfig) parseTLSVersion() uint16 {
	switch c.MinVersion {
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}

// parseCipherSuites converts cipher suite names to their identifiers.
func (c *ServerConfig) parseCipherSuites() ([]uint16, error) {
	if len(c.CipherSuites) == 0 {
		return nil, nil
	}

	suites := make([]uint16, 0, len(c.CipherSuites))
	for _, name := range c.CipherSuites {
		id, ok := cipherSuiteMap[name]
		if !ok {
			return nil, fmt.Errorf("unsupported cipher suite %q", name)
		}
		suites = append(suites, id)
	}

	return suites, nil
}

// cipherSuiteMap maps TLS 1.2 cipher suite names to their constants. Only
// AEAD suites with forward secrecy are allowed.
var cipherSuiteMap = map[string]uint16{
	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305":    tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305":  tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

// IsSupportedCipherSuite reports whether name is accepted in CipherSuites.
func IsSupportedCipherSuite(name string) bool {
	_, ok := cipherSuiteMap[name]
	return ok
}
