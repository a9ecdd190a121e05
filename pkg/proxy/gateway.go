package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"mercator-hq/gatehouse/internal/hostname"
	"mercator-hq/gatehouse/pkg/proxy/middleware"
	"mercator-hq/gatehouse/pkg/routing"
	"mercator-hq/gatehouse/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel/trace"
)

// StatusClientClosed is recorded when the client disconnects before the
// backend answers. It is never written to the wire.
const StatusClientClosed = 499

// Recorder receives per-request forwarding measurements. The telemetry
// metrics collector implements it.
type Recorder interface {
	RecordProxyRequest(host string, status int, duration time.Duration)
	RecordUpstreamError(host string)
}

type nopRecorder struct{}

func (nopRecorder) RecordProxyRequest(string, int, time.Duration) {}
func (nopRecorder) RecordUpstreamError(string)                    {}

// Options configures a Gateway.
type Options struct {
	// Routes resolves request hosts to backends. Required.
	Routes *routing.Table

	// Local serves loopback requests that match no route. When nil such
	// requests get 404 like any other unmapped host.
	Local http.Handler

	// Transport sends upstream requests. Defaults to NewTransport with
	// default settings.
	Transport http.RoundTripper

	// Tracer opens a span per forwarded request. Defaults to a no-op tracer.
	Tracer *tracing.Tracer

	Logger   *slog.Logger
	Recorder Recorder
}

// Gateway forwards each request to the backend of the route matching its
// Host header.
type Gateway struct {
	routes    *routing.Table
	local     http.Handler
	transport http.RoundTripper
	tracer    *tracing.Tracer
	logger    *slog.Logger
	recorder  Recorder
	buffers   sync.Pool
}

// NewGateway creates a gateway.
func NewGateway(opts Options) (*Gateway, error) {
	if opts.Routes == nil {
		return nil, errors.New("proxy: route table is required")
	}

	g := &Gateway{
		routes:    opts.Routes,
		local:     opts.Local,
		transport: opts.Transport,
		tracer:    opts.Tracer,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
	}
	if g.transport == nil {
		g.transport = NewTransport(TransportConfig{})
	}
	if g.tracer == nil {
		g.tracer = tracing.Noop()
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "gateway")
	if g.recorder == nil {
		g.recorder = nopRecorder{}
	}
	g.buffers.New = func() any {
		b := make([]byte, 32*1024)
		return &b
	}

	return g, nil
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := hostname.Normalize(r.Host)

	route := g.routes.Resolve(host)
	if route == nil || !route.Enabled {
		if g.local != nil && hostname.IsLoopback(host) {
			g.local.ServeHTTP(w, r)
			return
		}

		g.logger.Debug("No route for host",
			"host", host,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeText(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
		return
	}

	g.forward(w, r, route)
}

func (g *Gateway) forward(w http.ResponseWriter, r *http.Request, route *routing.Route) {
	start := time.Now()

	ctx, span := g.tracer.Start(tracing.Extract(r.Context(), r.Header), "gateway.forward",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	tracing.SetRouteAttributes(span, route.ID, route.Host, route.Backend.String())
	tracing.SetRequestAttributes(span, middleware.GetRequestID(ctx), r.Method, r.URL.Path)

	out, err := g.upstreamRequest(ctx, r, route)
	if err != nil {
		tracing.SetError(span, err)
		g.fail(w, r, route, start, err)
		return
	}

	resp, err := g.transport.RoundTrip(out)
	if err != nil {
		tracing.SetError(span, err)
		if ctx.Err() != nil {
			g.logger.Debug("Client disconnected before upstream response",
				"route_id", route.ID,
				"host", route.Host,
				"request_id", middleware.GetRequestID(ctx),
			)
			g.recorder.RecordProxyRequest(route.Host, StatusClientClosed, time.Since(start))
			return
		}
		g.fail(w, r, route, start, err)
		return
	}
	defer resp.Body.Close()
	tracing.SetStatusCode(span, resp.StatusCode)

	h := w.Header()
	copyResponseHeaders(h, resp.Header)

	stream := resp.ContentLength == -1
	if isEventStream(resp.Header.Get("Content-Type")) {
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")
		stream = true
	}

	w.WriteHeader(resp.StatusCode)
	if stream {
		_ = http.NewResponseController(w).Flush()
	}

	copyErr := g.copyBody(w, resp.Body, stream)
	g.recorder.RecordProxyRequest(route.Host, resp.StatusCode, time.Since(start))

	if copyErr != nil && ctx.Err() == nil {
		g.logger.Warn("Response stream interrupted",
			"route_id", route.ID,
			"host", route.Host,
			"request_id", middleware.GetRequestID(ctx),
			"error", copyErr,
		)
		// The status line is already sent; abort so the client sees a
		// truncated response instead of a clean end.
		panic(http.ErrAbortHandler)
	}
}

// upstreamRequest builds the backend request from the client request.
func (g *Gateway) upstreamRequest(ctx context.Context, r *http.Request, route *routing.Route) (*http.Request, error) {
	withBody := requestHasBody(r)

	var body io.Reader
	if withBody {
		body = r.Body
	}

	out, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL(route.Backend, r.URL).String(), body)
	if err != nil {
		return nil, err
	}
	if withBody {
		out.ContentLength = -1
	}
	out.Host = route.Backend.Host

	copyRequestHeaders(out.Header, r.Header, withBody)
	setForwardedHeaders(out.Header, r)
	tracing.Inject(ctx, out.Header)

	// A client without a User-Agent should not get Go's default one.
	if _, ok := out.Header["User-Agent"]; !ok {
		out.Header.Set("User-Agent", "")
	}

	return out, nil
}

func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, route *routing.Route, start time.Time, err error) {
	upErr := &UpstreamError{
		RouteID: route.ID,
		Host:    route.Host,
		Backend: route.Backend.String(),
		Err:     err,
	}

	g.logger.Error("Upstream request failed",
		"route_id", route.ID,
		"host", route.Host,
		"backend", upErr.Backend,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetRequestID(r.Context()),
		"error", err,
	)
	g.recorder.RecordUpstreamError(route.Host)
	g.recorder.RecordProxyRequest(route.Host, upErr.StatusCode(), time.Since(start))

	writeText(w, upErr.StatusCode(), badGatewayBody)
}

// copyBody streams src to w, flushing after every write when flush is set.
func (g *Gateway) copyBody(w http.ResponseWriter, src io.Reader, flush bool) error {
	bufp := g.buffers.Get().(*[]byte)
	defer g.buffers.Put(bufp)
	buf := *bufp

	rc := http.NewResponseController(w)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flush {
				if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
					return err
				}
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// requestHasBody reports whether the client body is forwarded: always for
// methods that conventionally carry one, otherwise only with a positive
// declared length.
func requestHasBody(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return r.ContentLength > 0
}

func isEventStream(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/event-stream")
	}
	return mt == "text/event-stream"
}

// upstreamURL joins the backend origin with the client's path and query.
func upstreamURL(backend, in *url.URL) *url.URL {
	u := *backend
	u.Path, u.RawPath = joinURLPath(backend, in)
	switch {
	case backend.RawQuery == "":
		u.RawQuery = in.RawQuery
	case in.RawQuery != "":
		u.RawQuery = backend.RawQuery + "&" + in.RawQuery
	}
	u.Fragment = ""
	return &u
}

func joinURLPath(a, b *url.URL) (path, rawpath string) {
	if a.RawPath == "" && b.RawPath == "" {
		return singleJoiningSlash(a.Path, b.Path), ""
	}

	apath := a.EscapedPath()
	bpath := b.EscapedPath()
	aslash := strings.HasSuffix(apath, "/")
	bslash := strings.HasPrefix(bpath, "/")

	switch {
	case aslash && bslash:
		return a.Path + b.Path[1:], apath + bpath[1:]
	case !aslash && !bslash:
		return a.Path + "/" + b.Path, apath + "/" + bpath
	}
	return a.Path + b.Path, apath + bpath
}

func singleJoiningSlash(a, b string) string {
	if a == "" {
		return b
	}
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
