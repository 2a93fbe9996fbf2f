package gee

import (
	"log/slog"
	"time"
)

// Logger 是 Default() 带的最简访问日志；线上用 middleware.AccessLog。
func Logger() HandlerFunc {
	return func(ctx *Context) {
		t := time.Now()
		ctx.Next()
		slog.Debug("request",
			"status", ctx.Writer.Status(),
			"uri", ctx.Req.RequestURI,
			"latency_us", time.Since(t).Microseconds(),
			"size", ctx.Writer.Size())
	}
}
