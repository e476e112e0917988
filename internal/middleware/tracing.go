package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request named "METHOD /route/{pattern}".
// Before routing, and for requests chi never routed, the raw path is used.
func Tracing(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			span := trace.SpanFromContext(r.Context())
			if pattern := routePattern(r); pattern != "" {
				span.SetAttributes(attribute.String("http.route", pattern))
			}
			span.SetName(spanName("", r))
		})
		return otelhttp.NewHandler(routed, service, otelhttp.WithSpanNameFormatter(spanName))
	}
}

func spanName(_ string, r *http.Request) string {
	if pattern := routePattern(r); pattern != "" {
		return r.Method + " " + pattern
	}
	return r.Method + " " + r.URL.Path
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
