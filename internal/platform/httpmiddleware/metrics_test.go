package httpmiddleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"shorturl.local/gee"
	"shorturl.local/internal/platform/httpmiddleware"
	"shorturl.local/internal/platform/metrics"
)

func TestMetricsLabelsByRoutePattern(t *testing.T) {
	r := gee.New()
	r.Use(httpmiddleware.Metrics("/healthz"))
	r.GET("/healthz", func(ctx *gee.Context) { ctx.String(http.StatusOK, "ok") })
	r.GET("/:keyword", func(ctx *gee.Context) { ctx.Redirect(http.StatusMovedPermanently, "https://example.com/") })

	redirects := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/:keyword", "301")
	health := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200")
	unmatched := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "UNMATCHED", "404")
	beforeRedirects := testutil.ToFloat64(redirects)
	beforeHealth := testutil.ToFloat64(health)
	beforeUnmatched := testutil.ToFloat64(unmatched)

	for _, p := range []string{"/abc", "/def", "/healthz", "/a/b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(redirects) - beforeRedirects; got != 2 {
		t.Errorf("/:keyword 301: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(health) - beforeHealth; got != 0 {
		t.Errorf("/healthz should be skipped, got %v", got)
	}
	if got := testutil.ToFloat64(unmatched) - beforeUnmatched; got != 1 {
		t.Errorf("UNMATCHED 404: got %v, want 1", got)
	}
}
