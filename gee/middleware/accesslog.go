package middleware

import (
	"context"
	"log/slog"
	"net"
	"time"

	"shorturl.local/gee"
)

// AccessLog 每个请求一行。5xx 记 Error，4xx 记 Warn，其余 Info；
// 跳转（3xx）量最大，route 字段是 "/:keyword" 而不是具体短码，方便聚合。
func AccessLog() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		start := time.Now()

		ctx.Next()

		status := ctx.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		slog.Log(context.Background(), level, "access",
			"request_id", ctx.Req.Header.Get(requestIDHeader),
			"method", ctx.Method,
			"path", ctx.Path,
			"route", ctx.RoutePattern,
			"status", status,
			"bytes", ctx.Writer.Size(),
			"remote", remoteHost(ctx.Req.RemoteAddr),
			"latency_ms", time.Since(start).Milliseconds())
	}
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
