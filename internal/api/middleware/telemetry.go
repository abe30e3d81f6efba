package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("pressmill-copilot-core/api")

// Telemetry wraps each admin API request in a server span. The chi request
// id and the acting user are recorded as attributes, and 5xx responses mark
// the span as errored.
func Telemetry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
			attribute.String("copilot.request_id", chimw.GetReqID(ctx)),
		}
		if actor := r.Header.Get("X-Actor"); actor != "" {
			attrs = append(attrs, attribute.String("copilot.actor", actor))
		}

		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		sr := record(w)

		next.ServeHTTP(sr, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", sr.status))
		if sr.status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(sr.status))
		}
	})
}
