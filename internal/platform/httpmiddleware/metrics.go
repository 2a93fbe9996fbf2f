package httpmiddleware

import (
	"strconv"
	"time"

	"shorturl.local/gee"
	"shorturl.local/internal/platform/metrics"
)

// Metrics 按路由模式（不是具体路径）记录请求数和耗时，短码不会撑爆 label 基数。
// skip 里的路由模式（如 /healthz、/favicon.ico）不记录。
func Metrics(skip ...string) gee.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(ctx *gee.Context) {
		routePattern := ctx.RoutePattern
		if routePattern == "" {
			routePattern = "UNMATCHED"
		}
		if _, ok := skipped[routePattern]; ok {
			ctx.Next()
			return
		}

		start := time.Now()
		metrics.HTTPInflightRequests.Inc()
		defer metrics.HTTPInflightRequests.Dec()
		defer func() {
			status := strconv.Itoa(ctx.Writer.Status())
			metrics.HTTPRequestsTotal.WithLabelValues(ctx.Method, routePattern, status).Inc()
			metrics.HTTPRequestDurationSeconds.WithLabelValues(ctx.Method, routePattern).Observe(time.Since(start).Seconds())
		}()
		ctx.Next()
	}
}
