package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/renewguard/pkg/constants"
)

// RequestObserver records per-request HTTP metrics.
type RequestObserver interface {
	ActiveRequestsInc()
	ActiveRequestsDec()
	ObserveRequest(path, method string, status int, duration time.Duration)
}

// ObservabilityMiddleware returns a Gin middleware that integrates Prometheus metrics and OpenTelemetry tracing.
// For each HTTP request, it continues any incoming W3C trace context, starts a server span and records
// request totals, duration and in-flight count labeled by route template, method and status.
// ObservabilityMiddleware 返回一个集成了 Prometheus 指标和 OpenTelemetry 跟踪的 Gin 中间件。
// 对于每个 HTTP 请求，它会延续传入的跟踪上下文，启动一个服务端跟踪范围并记录请求指标。
func ObservabilityMiddleware(tracer trace.Tracer, observer RequestObserver) gin.HandlerFunc {
	propagator := propagation.TraceContext{}

	return func(c *gin.Context) {
		start := time.Now()
		observer.ActiveRequestsInc()
		defer observer.ActiveRequestsDec()

		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+c.FullPath(), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			ctx = context.WithValue(ctx, constants.ContextKeyTraceID, sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		// Route templates keep label cardinality low.
		path := c.FullPath()
		if path == "" {
			path = "not_found"
		}
		status := c.Writer.Status()
		observer.ObserveRequest(path, c.Request.Method, status, time.Since(start))

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.path", path),
			attribute.Int("http.status_code", status),
			attribute.String("http.client_ip", c.ClientIP()),
		)
	}
}
