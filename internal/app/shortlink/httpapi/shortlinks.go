package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"shorturl.local/gee"
	"shorturl.local/internal/app/shortlink"
	"shorturl.local/internal/platform/httpmiddleware"
)

type CreateRequest struct {
	URL     string `json:"url"`
	Keyword string `json:"keyword,omitempty"`
	Title   string `json:"title,omitempty"`
}

type LinkResponse struct {
	Keyword   string    `json:"keyword"`
	ShortURL  string    `json:"short_url"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Clicks    uint64    `json:"clicks"`
}

func toLinkResponse(svc *shortlink.Service, l *shortlink.ShortLink) *LinkResponse {
	return &LinkResponse{
		Keyword:   l.Keyword,
		ShortURL:  svc.ShortURL(l.Keyword),
		URL:       l.URL,
		Title:     l.Title,
		CreatedAt: l.CreatedAt,
		Clicks:    l.Clicks,
	}
}

func NewCreateHandler(svc *shortlink.Service) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		var req CreateRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		res, err := svc.CreateShortLink(ctx.Req.Context(), shortlink.CreateRequest{
			URL:       req.URL,
			Keyword:   req.Keyword,
			Title:     req.Title,
			CreatorIP: httpmiddleware.ClientIP(ctx.Req),
		})
		if err != nil {
			writeError(ctx, svc, err)
			return
		}
		ctx.JSON(http.StatusCreated, toLinkResponse(svc, res.Link))
	}
}

// NewExpandHandler 查询短码对应的长链接，不计点击。
func NewExpandHandler(svc *shortlink.Service) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		link, err := svc.Expand(ctx.Req.Context(), ctx.Param("keyword"))
		if err != nil {
			writeError(ctx, svc, err)
			return
		}
		ctx.JSON(http.StatusOK, toLinkResponse(svc, link))
	}
}

func NewKeywordAvailableHandler(svc *shortlink.Service) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		kw := ctx.Param("keyword")
		free, err := svc.IsFree(ctx.Req.Context(), kw)
		if err != nil {
			writeError(ctx, svc, err)
			return
		}
		ctx.JSON(http.StatusOK, gee.H{"keyword": kw, "available": free})
	}
}

// NewRedirectHandler 是 GET /:keyword。
//
//   - 命中：按配置的 3xx 跳到长链接，禁止缓存以便每次点击都能计数
//   - 保留页面：渲染 PAGES_DIR 下的同名页面
//   - 未命中：302 回站点根，不返回 404
//   - 存储不可用：503
func NewRedirectHandler(svc shortlink.Resolver, pages *Pages, status int) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		out, err := svc.ResolveKeyword(ctx.Req.Context(), ctx.Param("keyword"), visitFrom(ctx.Req))
		if err != nil {
			slog.Error("resolve keyword failed", "keyword", ctx.Param("keyword"), "err", err)
			ctx.AbortWithError(http.StatusServiceUnavailable, "storage unavailable")
			return
		}

		switch out.Kind {
		case shortlink.OutcomeRedirect:
			ctx.SetHeader("Cache-Control", "no-cache, no-store, must-revalidate")
			ctx.SetHeader("X-Robots-Tag", "noindex")
			ctx.Redirect(status, out.Location)
		case shortlink.OutcomePage:
			body, err := pages.Render(out.Page)
			if err != nil {
				slog.Error("render page failed", "page", out.Page, "err", err)
				ctx.AbortWithError(http.StatusInternalServerError, "page unavailable")
				return
			}
			ctx.HTML(http.StatusOK, body)
		default:
			ctx.Redirect(http.StatusFound, out.Location)
		}
	}
}

// NewClicksHandler 按 id 倒序分页返回点击明细，管理员可见。
func NewClicksHandler(stats StatsReader) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		keyword := ctx.Param("keyword")

		limit := 20
		if l := ctx.Query("limit"); l != "" {
			if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
				limit = n
			} else {
				ctx.AbortWithError(http.StatusBadRequest, "invalid limit")
				return
			}
		}
		var cursor int64 = 0
		if c := ctx.Query("cursor"); c != "" {
			if n, err := strconv.ParseInt(c, 10, 64); err == nil && n > 0 {
				cursor = n
			} else {
				ctx.AbortWithError(http.StatusBadRequest, "invalid cursor")
				return
			}
		}

		resp, err := stats.ListStatsByKeyword(ctx.Req.Context(), keyword, limit, cursor)
		if err != nil {
			writeError(ctx, nil, err)
			return
		}
		ctx.JSON(http.StatusOK, resp)
	}
}
