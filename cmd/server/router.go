package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxRequestBody bounds every request on the chat listener.
const maxRequestBody = 64 << 10

// routerDeps is what the chat listener needs besides the routes themselves.
type routerDeps struct {
	logger           log.Logger
	healthz          http.Handler
	readyz           http.Handler
	instrument       func(http.Handler) http.Handler
	trustedProxyHops int
}

// newChatHandler builds the chat listener: a chi router carrying the probes
// and whatever mount registers, wrapped in the shared middleware chain.
// Wrappers are applied inside out, the last one sees the request first.
func newChatHandler(d routerDeps, mount func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxRequestBody))

	r.Method(http.MethodGet, "/-/healthy", d.healthz)
	r.Method(http.MethodGet, "/-/ready", d.readyz)
	mount(r)

	var h http.Handler = r
	h = httpmw.WithLogger(d.logger)(h)
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool { return !isProbePath(r.URL.Path) }),
		// renamed to the chi route pattern once routing is done
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)
	if d.instrument != nil {
		h = d.instrument(h)
	}
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{TrustedHops: d.trustedProxyHops})(h)
	h = httpmw.RequestID("X-Request-Id")(h)
	h = httpmw.Recover(d.logger, nil)(h)
	h = httpmw.SecurityHeaders(h)
	return h
}

func isProbePath(p string) bool {
	return p == "/-/healthy" || p == "/-/ready"
}
