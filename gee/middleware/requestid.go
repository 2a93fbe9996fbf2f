package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"shorturl.local/gee"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 64
)

// ReqID 沿用上游（Caddy/Cloudflare）传来的请求 id；没有或格式不对就生成一个。
// 请求 id 会原样进日志和错误响应，所以只接受 [A-Za-z0-9._-]。
func ReqID() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id := ctx.Req.Header.Get(requestIDHeader)
		if !validReqID(id) {
			id = GenerateReqID()
			ctx.Req.Header.Set(requestIDHeader, id)
		}
		ctx.SetHeader(requestIDHeader, id)

		ctx.Next()
	}
}

func validReqID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// GenerateReqID 返回 32 个十六进制字符；随机源出错时退回纳秒时间戳。
func GenerateReqID() string {
	src := make([]byte, 16)
	if _, err := rand.Read(src); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(src)
}
