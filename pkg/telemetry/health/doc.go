// Package health provides liveness and readiness probes for the gateway.
//
// # Endpoints
//
//   - /health: liveness, 200 while the process runs
//   - /ready: readiness, 200 only after startup and while every registered
//     check passes; 503 while starting, draining or degraded
//   - /version: build information
//
// # Usage
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("routes_dir", health.DirectoryCheck(cfg.Routes.ConfigPath))
//	checker.RegisterCheck("admission_store", health.PingCheck(store))
//
//	mux.HandleFunc("GET /health", checker.LivenessHandler())
//	mux.HandleFunc("GET /ready", checker.ReadinessHandler())
//
//	// once listeners are bound
//	checker.MarkReady()
//	// when shutdown begins
//	checker.MarkDraining()
//
// Checks run concurrently, each bounded by the checker's timeout.
package health
