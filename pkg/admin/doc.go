// Package admin serves the gateway's administrative JSON API.
//
// The handler is mounted as the gateway's local handler, so it is reached
// only through loopback host names that have no route. The /api tree also
// requires a loopback transport peer:
//
//	GET    /api/routes          list routes (passwords redacted)
//	POST   /api/routes          create a route; id generated when empty
//	GET    /api/routes/{id}     fetch one route
//	PUT    /api/routes/{id}     replace a route
//	DELETE /api/routes/{id}     delete the route file
//	GET    /api/blocks          active admission blocks
//	DELETE /api/blocks/{ip}     lift a block
//	GET    /api/certificates    served certificates and expiry
//
// /health, /ready, /version and the metrics path are served alongside.
package admin
