package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"shorturl.local/gee"
	"shorturl.local/internal/app/shortlink"
	"shorturl.local/internal/platform/httpmiddleware"
)

// ErrorResponse 在 gee.ErrorResponse 之外带上稳定的错误码；重复 URL 时附带已存在的短链。
type ErrorResponse struct {
	gee.ErrorResponse
	ErrorCode shortlink.ErrorCode `json:"error_code,omitempty"`
	Existing  *LinkResponse       `json:"existing,omitempty"`
}

// statusOf 把领域错误码翻译成 HTTP 状态码。
func statusOf(code shortlink.ErrorCode) int {
	switch code {
	case shortlink.CodeInvalidURL, shortlink.CodeShortURLLoop:
		return http.StatusBadRequest
	case shortlink.CodeDuplicateURL, shortlink.CodeKeywordUnavailable:
		return http.StatusConflict
	case shortlink.CodeAllocationConflict, shortlink.CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(ctx *gee.Context, svc *shortlink.Service, err error) {
	if errors.Is(err, shortlink.ErrNotFound) {
		ctx.AbortWithError(http.StatusNotFound, "shortlink not found")
		return
	}
	var e *shortlink.Error
	if !errors.As(err, &e) {
		slog.Error("unexpected error", "path", ctx.Path, "err", err)
		ctx.AbortWithError(http.StatusInternalServerError, "internal error")
		return
	}
	status := statusOf(e.Code)
	if status >= http.StatusInternalServerError {
		slog.Error("shortlink request failed", "path", ctx.Path, "code", e.Code, "err", err)
	}
	resp := ErrorResponse{
		ErrorResponse: gee.NewErrorResponse(ctx, status, e.Message),
		ErrorCode:     e.Code,
	}
	if e.Existing != nil && svc != nil {
		resp.Existing = toLinkResponse(svc, e.Existing)
	}
	ctx.AbortWithStatusJSON(status, resp)
}

// visitFrom 从请求里取访客信息，IP 和国家码只信任可信代理转发的头。
func visitFrom(req *http.Request) shortlink.Visit {
	return shortlink.Visit{
		Referrer:    shortlink.ValidText(req.Referer()),
		UserAgent:   shortlink.ValidText(req.UserAgent()),
		IP:          httpmiddleware.ClientIP(req),
		CountryCode: httpmiddleware.CountryCode(req),
	}
}
