package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/docket/internal/ticketapi"
)

// maxTicketBytes bounds request bodies. Ticket bodies run to 50k characters
// plus subject and metadata.
const maxTicketBytes = 128 * 1024

// handlerDeps are the pieces the public listener is assembled from.
type handlerDeps struct {
	logger      log.Logger
	api         *ticketapi.API
	healthz     http.HandlerFunc
	readyz      http.HandlerFunc
	metricsMW   func(http.Handler) http.Handler
	trustedHops int
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/-/healthy" || r.URL.Path == "/-/ready"
}

// apiHandler builds the router and wraps it in the middleware stack. Wrappers
// are applied inside out: the last one added sees the raw request first.
func apiHandler(d handlerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/json"))
	// names spans and log lines after the chi route pattern
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxTicketBytes))

	r.Get("/-/healthy", d.healthz)
	r.Get("/-/ready", d.readyz)
	d.api.RegisterRoutes(r)

	var h http.Handler = r
	h = httpmw.WithLogger(d.logger)(h)
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool { return !isProbe(r) }),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)
	if d.metricsMW != nil {
		h = d.metricsMW(h)
	}
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{TrustedHops: d.trustedHops})(h)
	h = httpmw.RequestID("X-Request-Id")(h)
	h = httpmw.Recover(d.logger, nil)(h)
	h = httpmw.SecurityHeaders(h)
	return h
}
