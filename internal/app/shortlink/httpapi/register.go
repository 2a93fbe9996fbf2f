package httpapi

import (
	"context"
	"net/http"
	"time"

	"shorturl.local/gee"
	"shorturl.local/internal/app/shortlink"
	"shorturl.local/internal/app/shortlink/repo"
	"shorturl.local/internal/platform/auth"
	"shorturl.local/internal/platform/httpmiddleware"
	"shorturl.local/internal/platform/ratelimit"
)

// StatsReader 是点击明细的只读查询，repo 的三个实现都满足。
type StatsReader interface {
	ListStatsByKeyword(ctx context.Context, keyword string, limit int, cursor int64) (*repo.StatsResponse, error)
}

// Deps 是本包 handler 需要的全部依赖，由 cmd/api 组装。
type Deps struct {
	Service *shortlink.Service
	Stats   StatsReader
	Users   *auth.Users
	Tokens  auth.TokenService
	Limiter *ratelimit.Limiter // nil 表示不限流
	Pages   *Pages             // nil 表示没有自定义页面

	RedirectStatus    int
	AuthRequired      bool
	CreateRateLimit   int // 每分钟
	RedirectRateLimit int // 每分钟
}

func (d Deps) createLimit() int   { return orDefault(d.CreateRateLimit, 10) }
func (d Deps) redirectLimit() int { return orDefault(d.RedirectRateLimit, 100) }

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// RegisterAPIRoutes 在给定分组（通常是 /api/v1）下挂载 JSON API。
//
// 本包只做传输层：参数解析、错误码映射、响应格式；领域逻辑在 internal/app/shortlink。
func RegisterAPIRoutes(api *gee.RouterGroup, d Deps) {
	api.Use(httpmiddleware.AuthOptional(d.Tokens))

	//创建短链 AUTH_REQUIRED=true 时需要登录
	api.POST("/shortlinks",
		httpmiddleware.RateLimit(d.Limiter, "create", d.createLimit(), time.Minute),
		httpmiddleware.AuthRequiredIf(d.AuthRequired, d.Tokens),
		NewCreateHandler(d.Service))
	api.GET("/shortlinks/:keyword", NewExpandHandler(d.Service))
	api.GET("/keywords/:keyword", NewKeywordAvailableHandler(d.Service))
	//登录-  5次/分钟
	api.POST("/login", httpmiddleware.RateLimit(d.Limiter, "login", 5, time.Minute), NewLoginHandler(d.Users, d.Tokens))

	// 需要登录的路由
	users := api.Group("/users")
	users.Use(httpmiddleware.AuthRequired(d.Tokens))
	users.GET("/me", NewUserMeHandler())

	// 需要管理员的
	admin := api.Group("/admin")
	admin.Use(httpmiddleware.AuthRequired(d.Tokens), httpmiddleware.RequireRole(auth.RoleAdmin))
	admin.GET("/ping", func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "pong")
	})
	admin.GET("/shortlinks/:keyword/clicks", NewClicksHandler(d.Stats))
}

// RegisterPublicRoutes 在根路由上挂载跳转入口 GET /:keyword。
//
// 静态路由（/healthz、/api/...）在 trie 里优先于 :keyword，分配器会避开这些段。
func RegisterPublicRoutes(engine *gee.Engine, d Deps) {
	//跳转 默认 100次/分钟
	engine.GET("/:keyword",
		httpmiddleware.RateLimit(d.Limiter, "redirect", d.redirectLimit(), time.Minute),
		NewRedirectHandler(d.Service, d.Pages, d.RedirectStatus))
}
