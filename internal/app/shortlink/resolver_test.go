package shortlink_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorturl.local/internal/app/shortlink"
)

func create(t *testing.T, f *fixture, url, keyword string) *shortlink.ShortLink {
	t.Helper()
	res, err := f.svc.CreateShortLink(context.Background(), shortlink.CreateRequest{URL: url, Keyword: keyword})
	require.NoError(t, err)
	return res.Link
}

func TestResolveRedirectCountsClick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	create(t, f, "https://example.com/", "")

	visit := shortlink.Visit{Referrer: "https://news.example/", UserAgent: "ua", IP: "203.0.113.9", CountryCode: "NL"}
	for range 3 {
		out, err := f.svc.ResolveKeyword(ctx, "1", visit)
		require.NoError(t, err)
		assert.Equal(t, shortlink.OutcomeRedirect, out.Kind)
		assert.Equal(t, "https://example.com/", out.Location)
	}

	link, err := f.store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), link.Clicks)
	assert.Equal(t, 3, f.store.ClickLogLen())

	stats, err := f.store.ListStatsByKeyword(ctx, "1", 10, 0)
	require.NoError(t, err)
	require.Len(t, stats.RecentClicks, 3)
	assert.Equal(t, "NL", stats.RecentClicks[0].CountryCode)
	assert.False(t, stats.RecentClicks[0].ClickedAt.IsZero())
}

func TestResolveSanitizesKeyword(t *testing.T) {
	f := newFixture(t)
	create(t, f, "https://example.com/", "abc")

	out, err := f.svc.ResolveKeyword(context.Background(), "a-b.c", shortlink.Visit{})
	require.NoError(t, err)
	assert.Equal(t, shortlink.OutcomeRedirect, out.Kind)
	assert.Equal(t, "abc", out.Keyword)
}

func TestResolveNotFoundGoesToSiteRoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, kw := range []string{"doesnotexist", "", "%%%"} {
		out, err := f.svc.ResolveKeyword(ctx, kw, shortlink.Visit{})
		require.NoError(t, err)
		assert.Equal(t, shortlink.OutcomeNotFound, out.Kind)
		assert.Equal(t, testSite+"/", out.Location)
	}
	assert.Zero(t, f.store.Len())
	assert.Zero(t, f.store.ClickLogLen())
	assert.Equal(t, "1", f.nextID(t))
}

func TestResolveStorageFailure(t *testing.T) {
	f := newFixture(t, func(c *fixtureConfig) { c.store = brokenStore{c.mem} })
	_, err := f.svc.ResolveKeyword(context.Background(), "abc", shortlink.Visit{})
	assert.ErrorIs(t, err, shortlink.ErrStorageUnavailable)
}

func TestResolvePage(t *testing.T) {
	f := newFixture(t, func(c *fixtureConfig) {
		c.sanitizer = append(c.sanitizer, shortlink.WithPages("about"))
	})
	out, err := f.svc.ResolveKeyword(context.Background(), "about", shortlink.Visit{})
	require.NoError(t, err)
	assert.Equal(t, shortlink.OutcomePage, out.Kind)
	assert.Equal(t, "about", out.Page)

	_, err = f.svc.CreateShortLink(context.Background(), shortlink.CreateRequest{URL: "https://example.com/", Keyword: "about"})
	assert.ErrorIs(t, err, shortlink.ErrKeywordUnavailable)
}

func TestClickFailuresNeverBreakRedirect(t *testing.T) {
	cases := map[string]func(*fixtureConfig){
		"counter error": func(c *fixtureConfig) { c.store = flakyClicks{MemoryStore: c.mem} },
		"counter panic": func(c *fixtureConfig) { c.store = flakyClicks{MemoryStore: c.mem, panics: true} },
		"click log error": func(c *fixtureConfig) {
			c.extra = append(c.extra, shortlink.WithClickLog(failingClickLog{}))
		},
		"async counter panic": func(c *fixtureConfig) {
			c.store = flakyClicks{MemoryStore: c.mem, panics: true}
			c.opts.AsyncClicks = true
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, mutate)
			create(t, f, "https://example.com/", "abc")

			out, err := f.svc.ResolveKeyword(context.Background(), "abc", shortlink.Visit{})
			require.NoError(t, err)
			assert.Equal(t, shortlink.OutcomeRedirect, out.Kind)
			assert.Equal(t, "https://example.com/", out.Location)
			f.svc.Close()
		})
	}
}

func TestAsyncClicksOutliveRequestContext(t *testing.T) {
	rec := &recordingClickLog{}
	f := newFixture(t, func(c *fixtureConfig) {
		c.opts.AsyncClicks = true
		c.opts.ClickTimeout = time.Second
		c.extra = append(c.extra, shortlink.WithClickLog(rec))
	})
	create(t, f, "https://example.com/", "abc")

	ctx, cancel := context.WithCancel(context.Background())
	out, err := f.svc.ResolveKeyword(ctx, "abc", shortlink.Visit{})
	cancel()
	require.NoError(t, err)
	assert.Equal(t, shortlink.OutcomeRedirect, out.Kind)

	f.svc.Close()
	assert.Equal(t, 1, rec.len())
	link, err := f.store.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), link.Clicks)
}

func TestRedirectHooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	create(t, f, "https://example.com/", "abc")

	f.hooks.Register(shortlink.HookPreRedirect, 0, func(_ context.Context, p shortlink.HookPayload) (shortlink.HookPayload, bool) {
		if p.Keyword == "promo" {
			p.Outcome = &shortlink.RedirectOutcome{Kind: shortlink.OutcomeRedirect, Keyword: "promo", Location: "https://promo.example/"}
			return p, true
		}
		return p, false
	})
	// post_redirect 短路后不记点击
	f.hooks.Register(shortlink.HookPostRedirect, 0, func(_ context.Context, p shortlink.HookPayload) (shortlink.HookPayload, bool) {
		return p, p.Visit.UserAgent == "bot"
	})

	out, err := f.svc.ResolveKeyword(ctx, "promo", shortlink.Visit{})
	require.NoError(t, err)
	assert.Equal(t, "https://promo.example/", out.Location)

	_, err = f.svc.ResolveKeyword(ctx, "abc", shortlink.Visit{UserAgent: "bot"})
	require.NoError(t, err)
	_, err = f.svc.ResolveKeyword(ctx, "abc", shortlink.Visit{UserAgent: "human"})
	require.NoError(t, err)

	link, err := f.store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), link.Clicks)
	assert.Equal(t, 1, f.store.ClickLogLen())
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "redirect", shortlink.OutcomeRedirect.String())
	assert.Equal(t, "page", shortlink.OutcomePage.String())
	assert.Equal(t, "not_found", shortlink.OutcomeNotFound.String())
	assert.Equal(t, "unknown", shortlink.OutcomeKind(0).String())
}
