// Package server wires the gateway together and runs its listeners.
//
// New builds every component from a config.Config: the route table and
// certificate store, the route manager that feeds them from the routes
// directory, the SNI resolver, admission control with its block store,
// the forwarding gateway, the admin API, metrics, tracing and health
// checks. Start loads routes, binds the HTTP and HTTPS listeners and
// blocks until the context is cancelled or SIGINT/SIGTERM arrives.
//
// Both listeners serve the same chain:
//
//	Recovery -> RequestID -> Logging -> Admission -> Gateway
//
// The gateway falls through to the admin API for loopback host names that
// have no route. Read and write timeouts are deliberately absent so long
// uploads and event streams are not cut off; only header reads and idle
// keep-alive connections are bounded.
//
// Usage:
//
//	srv, err := server.New(cfg, server.BuildInfo{Version: version}, logger)
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx)
package server
