package httpmiddleware

import (
	"go.opentelemetry.io/otel/trace"

	"shorturl.local/gee"
)

// TraceName 用路由模板给 otelhttp 创建的 span 改名，避免把短码写进 span 名。
func TraceName() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		span := trace.SpanFromContext(ctx.Req.Context())
		pattern := ctx.RoutePattern
		if pattern == "" {
			pattern = "UNMATCHED"
		}
		span.SetName(ctx.Method + " " + pattern)
		ctx.Next()
	}
}
