package httpapi

import (
	"embed"
	"net/http"
	"os"
	"path/filepath"

	"shorturl.local/gee"
)

//go:embed static/index.html
var staticFS embed.FS

// RegisterWebRoutes 挂载首页。PAGES_DIR 里有 index.html 时优先用它，否则用内置的那一页。
func RegisterWebRoutes(r *gee.Engine, pages *Pages) {
	index, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		panic("embedded index.html missing: " + err.Error())
	}
	if dir := pages.Dir(); dir != "" {
		if custom, err := os.ReadFile(filepath.Join(dir, "index.html")); err == nil {
			index = custom
		}
		if st, err := os.Stat(filepath.Join(dir, "static")); err == nil && st.IsDir() {
			r.Static("/static", filepath.Join(dir, "static"))
		}
	}

	r.GET("/", func(ctx *gee.Context) {
		ctx.HTML(http.StatusOK, index)
	})

	// 避免浏览器请求 favicon 刷一堆 NotFound 跳转
	r.GET("/favicon.ico", func(ctx *gee.Context) {
		ctx.Status(http.StatusNoContent)
	})
	r.GET("/robots.txt", func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "User-agent: *\nDisallow: /api/\n")
	})
}
