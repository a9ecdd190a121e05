// Package proxy implements the forwarding pipeline: the http.Handler that
// maps each request's Host header to a route and relays the exchange to
// that route's backend.
//
// # Request Flow
//
//	client -> Gateway.ServeHTTP
//	  -> routing.Table.Resolve(host)      (www/non-www alias fallback)
//	  -> no route, loopback host          -> local handler (admin API)
//	  -> no route, any other host         -> 404
//	  -> route found                      -> upstream request -> backend
//
// # Header Rewriting
//
// Hop-by-hop headers (Connection, Proxy-Connection, Keep-Alive,
// Transfer-Encoding, Upgrade, TE, Trailer) and any header named in
// Connection are dropped in both directions. The client's Content-Length is
// never forwarded; bodies are streamed and framed by the transport. Content-*
// headers travel only when a body does. The Host header is rewritten to the
// backend's host, and the request gains:
//
//	X-Forwarded-For:   <existing chain>, <peer ip>
//	X-Forwarded-Host:  <original Host>
//	X-Forwarded-Proto: http | https
//	X-Forwarded-Port:  <port>
//	Forwarded:         for=<peer>;host=<original Host>;proto=<scheme>
//
// # Streaming
//
// Upstream exchanges have no overall timeout; only dialing is bounded. The
// upstream request is bound to the client's context, so a client disconnect
// aborts it. Responses with Content-Type text/event-stream get
// Cache-Control: no-cache and X-Accel-Buffering: no and are flushed after
// every write, as are responses of unknown length.
//
// # Failures
//
// Transport failures produce 502 with the body "Bad Gateway". There is no
// retry. Each failure is logged with the route ID and request ID and counted
// through the Recorder.
package proxy
