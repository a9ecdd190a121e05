/*
Package tls discovers, validates and serves the certificates Gatehouse
presents during TLS handshakes.

# Certificate Discovery

A Loader resolves the certificate for a host from a route's certificate
directory. It accepts "{host}.crt"/"{host}.key" pairs, "{host}.pfx" or
"{host}.p12" archives, and a single generic ".crt" plus ".key" pair which is
synthesized into a cached "{host}.pfx":

	loader := tls.NewLoader(nil)
	cert := loader.ResolveForHost("/etc/gatehouse/certs/example", "example.com", "")
	if cert == nil {
		// no usable material, handshakes for example.com fail
	}

# Serving Certificates

A Store maps normalized host names to loaded certificates, registering the
www/non-www alias when the certificate covers it. An SNIResolver plugs the
store into crypto/tls:

	store := tls.NewStore()
	_ = store.Register("example.com", cert)

	resolver := tls.NewSNIResolver(store, nil)
	tlsConfig, err := (&tls.ServerConfig{MinVersion: "1.2"}).ToTLSConfig(resolver)

Lookups that miss or hit a certificate which no longer covers the requested
name fail the handshake instead of presenting a mismatched certificate.
*/
package tls
