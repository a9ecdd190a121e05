package admin

import (
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"

	"mercator-hq/gatehouse/pkg/limits/admission"
	"mercator-hq/gatehouse/pkg/limits/storage"
	"mercator-hq/gatehouse/pkg/proxy/middleware"
	"mercator-hq/gatehouse/pkg/routes"
	"mercator-hq/gatehouse/pkg/security/auth"
	"mercator-hq/gatehouse/pkg/telemetry/health"
)

// maxBodyBytes caps route definitions accepted over the API.
const maxBodyBytes = 1 << 20

// RouteStore is the route persistence the API edits. *routes.Manager
// satisfies it.
type RouteStore interface {
	List() []*routes.Entry
	Get(id string) (*routes.Entry, bool)
	Save(entry *routes.Entry) (*routes.Entry, error)
	Delete(id string) error
}

// BlockList exposes admission blocks. *admission.Guard satisfies it.
type BlockList interface {
	Blocked() []*storage.Block
	Unblock(ip string) bool
}

// CertificateSource lists served certificates. *gwtls.Store satisfies it.
type CertificateSource interface {
	ListHosts() []string
	Resolve(host string) *tls.Certificate
}

// Options configures the admin handler. Only Routes is required.
type Options struct {
	Routes       RouteStore
	Blocks       BlockList
	Certificates CertificateSource
	Health       *health.Checker

	// APIKeys, when set, must also be presented on /api requests.
	APIKeys *auth.Validator

	// Metrics is served at MetricsPath when both are set.
	Metrics     http.Handler
	MetricsPath string

	Version   string
	Commit    string
	BuildTime string

	Logger *slog.Logger
}

// Handler serves the administrative API.
type Handler struct {
	routes RouteStore
	blocks BlockList
	certs  CertificateSource
	logger *slog.Logger
	mux    *http.ServeMux
}

// New builds the admin handler.
//
// The /api tree answers only to loopback peers, which must also present an
// API key when any are configured. The metrics path is loopback-only too.
// Probe and version endpoints answer to any peer that reached the handler.
func New(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "admin")
	}

	h := &Handler{
		routes: opts.Routes,
		blocks: opts.Blocks,
		certs:  opts.Certificates,
		logger: opts.Logger,
		mux:    http.NewServeMux(),
	}

	var authn *auth.Middleware
	if opts.APIKeys != nil && opts.APIKeys.Len() > 0 {
		authn = auth.NewMiddleware(opts.APIKeys, opts.Logger, func(w http.ResponseWriter, r *http.Request) {
			middleware.WriteError(w, http.StatusUnauthorized, "unauthorized", "A valid API key is required.")
		})
	}
	api := func(pattern string, fn http.HandlerFunc) {
		var next http.Handler = fn
		if authn != nil {
			next = authn.Handle(next)
		}
		h.mux.Handle(pattern, loopbackOnly(next))
	}

	if h.routes != nil {
		api("GET /api/routes", h.listRoutes)
		api("POST /api/routes", h.createRoute)
		api("GET /api/routes/{id}", h.getRoute)
		api("PUT /api/routes/{id}", h.updateRoute)
		api("DELETE /api/routes/{id}", h.deleteRoute)
	}
	if h.blocks != nil {
		api("GET /api/blocks", h.listBlocks)
		api("DELETE /api/blocks/{ip}", h.unblock)
	}
	if h.certs != nil {
		api("GET /api/certificates", h.listCertificates)
	}

	if opts.Health != nil {
		h.mux.Handle("/health", opts.Health.LivenessHandler())
		h.mux.Handle("/ready", opts.Health.ReadinessHandler())
	}
	h.mux.Handle("/version", health.VersionHandler(opts.Version, opts.Commit, opts.BuildTime))
	if opts.Metrics != nil && opts.MetricsPath != "" {
		h.mux.Handle(opts.MetricsPath, loopbackOnly(opts.Metrics))
	}

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// loopbackOnly rejects requests whose transport peer is not a loopback
// address. Forwarding headers are ignored.
func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := net.ParseIP(admission.PeerIP(r))
		if ip == nil || !ip.IsLoopback() {
			middleware.WriteError(w, http.StatusForbidden, "forbidden",
				"This endpoint is only available from the local machine.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// actor names who made an API change: the API key name, or "local" when
// keys are not configured.
func actor(r *http.Request) string {
	if name, ok := auth.KeyName(r.Context()); ok {
		return name
	}
	return "local"
}
