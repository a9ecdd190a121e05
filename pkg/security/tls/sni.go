package tls

import (
	"crypto/tls"
	"errors"
	"log/slog"
)

// ErrNoCertificate is returned to crypto/tls when no certificate covers the
// requested server name. The handshake fails rather than presenting a
// mismatched certificate.
var ErrNoCertificate = errors.New("no certificate for server name")

// SNIResolver selects a certificate from a Store for each TLS handshake.
type SNIResolver struct {
	store  *Store
	logger *slog.Logger
}

// NewSNIResolver creates a resolver backed by store.
func NewSNIResolver(store *Store, logger *slog.Logger) *SNIResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SNIResolver{store: store, logger: logger.With("component", "tls.sni")}
}

// SelectCertificate returns the certificate for serverName, or nil when the
// name is empty, the store is not initialized, or nothing matches.
func (r *SNIResolver) SelectCertificate(serverName string) *tls.Certificate {
	if r == nil || r.store == nil || serverName == "" {
		return nil
	}
	return r.store.Resolve(serverName)
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *SNIResolver) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if cert := r.SelectCertificate(hello.ServerName); cert != nil {
		return cert, nil
	}

	if r != nil && r.logger != nil {
		r.logger.Debug("no certificate for handshake",
			"server_name", hello.ServerName,
			"remote_addr", remoteAddr(hello),
		)
	}

	return nil, ErrNoCertificate
}

func remoteAddr(hello *tls.ClientHelloInfo) string {
	if hello.Conn == nil || hello.Conn.RemoteAddr() == nil {
		return ""
	}
	return hello.Conn.RemoteAddr().String()
}
