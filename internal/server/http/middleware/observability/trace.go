package observability

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	TraceIDKey    = "trace_id"
	TraceIDHeader = "X-Trace-Id"
)

// TraceMiddleware 优先沿用上游 X-Trace-Id；否则使用 otel span 的 trace id，
// 未启用 tracing（span 无效）时生成 uuid
func TraceMiddleware() gin.HandlerFunc {
	tr := otel.Tracer("go-sysadmin/http")
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		ctx, span := tr.Start(ctx, c.Request.Method+" "+name, oteltrace.WithSpanKind(oteltrace.SpanKindServer))
		defer span.End()

		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			if sc := span.SpanContext(); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			} else {
				traceID = uuid.NewString()
			}
		}
		span.SetAttributes(attribute.String("custom.trace_id", traceID))
		c.Set(TraceIDKey, traceID)
		c.Writer.Header().Set(TraceIDHeader, traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
	}
}
