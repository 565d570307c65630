package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/flightdata-analyzer/internal/logging"
)

const tracerName = "github.com/signalsfoundry/flightdata-analyzer/internal/api"

const requestIDHeader = "X-Request-Id"

// RequestIDMiddleware ensures a request_id is present on the context,
// sourcing it from the inbound header if provided, and attaches a
// per-request logger annotated with request_id, method, and path. The ID
// is echoed back on the response.
func RequestIDMiddleware(base logging.Logger) mux.MiddlewareFunc {
	if base == nil {
		base = logging.Noop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if incoming := r.Header.Get(requestIDHeader); incoming != "" {
				ctx = logging.ContextWithRequestID(ctx, incoming)
			}

			ctx, reqLog := logging.WithRequestLogger(ctx, base.With(
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
			))
			ctx = logging.ContextWithLogger(ctx, reqLog)

			w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TracingMiddleware enriches request spans with standard attributes and
// ensures a server span exists when no upstream propagation created one.
func TracingMiddleware() mux.MiddlewareFunc {
	tracer := otel.Tracer(tracerName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			route := routeName(r)
			spanName := fmt.Sprintf("API %s %s", r.Method, route)

			span := trace.SpanFromContext(ctx)
			created := false
			if !span.SpanContext().IsValid() {
				ctx, span = tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindServer))
				created = true
			} else {
				span.SetName(spanName)
			}

			attrs := []attribute.KeyValue{
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
			}
			if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
				attrs = append(attrs, attribute.String("request_id", reqID))
			}
			span.SetAttributes(attrs...)

			rec := &spanStatusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.status_code", rec.status))
			if created {
				span.End()
			}
		})
	}
}

type spanStatusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *spanStatusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// routeName resolves the mux route template, falling back to the raw path
// for unrouted requests.
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil && tpl != "" {
			return tpl
		}
	}
	return r.URL.Path
}
