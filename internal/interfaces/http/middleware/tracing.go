package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes added on top of otelgin's
const (
	SpanAttrRequestID    = "techpack.request_id"
	SpanAttrSubject      = "techpack.subject"
	SpanAttrRequestClass = "techpack.request_class"
)

// TracingConfig holds configuration for the tracing middleware
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// Filter skips span creation for requests it returns false for
	Filter func(*http.Request) bool
}

// Tracing wraps otelgin. Spans are named "METHOD /route/:pattern".
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	var opts []otelgin.Option
	if cfg.Filter != nil {
		opts = append(opts, otelgin.WithFilter(cfg.Filter))
	}
	return otelgin.Middleware(cfg.ServiceName, opts...)
}

// SpanEnricher tags the request span with request ID, subject and request
// class, and marks 5xx responses as errors. Place it after Tracing,
// RequestID and Identity.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		attrs := make([]attribute.KeyValue, 0, 3)
		if id := c.GetString(RequestIDKey); id != "" {
			attrs = append(attrs, attribute.String(SpanAttrRequestID, id))
		}
		if subject := c.GetString(SubjectKey); subject != "" {
			attrs = append(attrs, attribute.String(SpanAttrSubject, subject))
		}
		if class := c.GetString(RequestClassKey); class != "" {
			attrs = append(attrs, attribute.String(SpanAttrRequestClass, class))
		}
		span.SetAttributes(attrs...)

		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			msg := http.StatusText(status)
			if len(c.Errors) > 0 {
				msg = c.Errors.Last().Error()
			}
			span.SetStatus(codes.Error, msg)
		}
	}
}
