// Gatehouse is a multi-tenant TLS reverse proxy.
//
// It terminates HTTPS with a certificate chosen per SNI host name, routes
// each request by its Host header to the backend configured for that host,
// and rejects abusive clients with per-IP admission control. Routes and
// certificates are read from a directory and reloaded when files change.
//
// Usage:
//
//	# Start the gateway with the default configuration
//	gatehouse run
//
//	# Start with a configuration file
//	gatehouse run --config /etc/gatehouse/config.yaml
//
//	# Check every route file in a directory
//	gatehouse routes validate --dir ./routes
//
//	# Show the certificate that would be served for a host
//	gatehouse certs inspect --dir ./certs --host shop.example.com
//
//	# Show version information
//	gatehouse version
package main

import (
	"os"

	"mercator-hq/gatehouse/pkg/cli"
)

func main() {
	os.Exit(cli.ExitCode(Execute()))
}
