package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// RouteFinder returns the route pattern a request would be dispatched to.
type RouteFinder func(r *http.Request) (string, bool)

// MakeRouteFinder returns a RouteFinder backed by the mux routing table.
func MakeRouteFinder(mux *http.ServeMux) RouteFinder {
	return func(r *http.Request) (string, bool) {
		_, pattern := mux.Handler(r)
		return pattern, pattern != ""
	}
}

// TelemetryProvider supplies tracer and meter providers.
type TelemetryProvider interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Instrument traces and measures every request with otelhttp. Spans are named
// after the matched route so that path parameters do not explode cardinality.
func Instrument(service string, find RouteFinder, t TelemetryProvider) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service,
			otelhttp.WithTracerProvider(t.TracerProvider()),
			otelhttp.WithMeterProvider(t.MeterProvider()),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if route, ok := find(r); ok {
					return route
				}
				return r.Method
			}),
		)
	}
}

// Labeler adds the matched route to the otelhttp metric labels.
func Labeler(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if route, ok := find(r); ok {
				labeler, _ := otelhttp.LabelerFromContext(r.Context())
				labeler.Add(attribute.String("http.route", route))
			}
			next.ServeHTTP(w, r)
		})
	}
}
